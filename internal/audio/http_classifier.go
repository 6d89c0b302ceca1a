package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClassifier calls a remote scorer service for voice activity detection.
// The service consumes a window of 16-bit PCM and returns a speech probability.
type HTTPClassifier struct {
	serviceURL string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPClassifier creates a new remote classifier client
func NewHTTPClassifier(serviceURL string, logger zerolog.Logger) *HTTPClassifier {
	if serviceURL == "" {
		serviceURL = "http://localhost:8899"
	}

	return &HTTPClassifier{
		serviceURL: serviceURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "vad_http").Logger(),
	}
}

// Score sends the window to the scorer service and returns its probability.
func (c *HTTPClassifier) Score(ctx context.Context, window Window) (float64, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", "window.pcm")
	if err != nil {
		return 0, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(encodePCM16(window)); err != nil {
		return 0, fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := fmt.Sprintf("%s/vad", c.serviceURL)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("scorer service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var vadResp struct {
		SpeechProb       float64 `json:"speech_prob"`
		ProcessingTimeMs float64 `json:"processing_time_ms"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&vadResp); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug().
		Float64("speech_prob", vadResp.SpeechProb).
		Float64("processing_ms", vadResp.ProcessingTimeMs).
		Msg("VAD score received")

	return vadResp.SpeechProb, nil
}

// Health checks if the scorer service is available
func (c *HTTPClassifier) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.serviceURL)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("scorer service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scorer service unhealthy (status %d)", resp.StatusCode)
	}

	return nil
}

// encodePCM16 converts normalized samples to little-endian 16-bit PCM
func encodePCM16(window Window) []byte {
	out := make([]byte, len(window)*2)
	for i, s := range window {
		v := int16(math.Max(-1, math.Min(1, s)) * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
