package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// SynthClient fetches synthesized audio from the external synthesis endpoint.
// A 204 response is the documented trigger for local fallback synthesis and
// is reported as (nil, nil).
type SynthClient struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewSynthClient creates a synthesis endpoint client.
func NewSynthClient(baseURL string, logger zerolog.Logger) *SynthClient {
	return &SynthClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "synth").Logger(),
	}
}

// Synthesize requests audio for text. Returns (audio, nil) on success,
// (nil, nil) when the endpoint has no content, and an error on transport or
// server failure.
func (c *SynthClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/speak", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		c.logger.Debug().Msg("Synthesis endpoint returned no content")
		return nil, nil

	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("synthesis endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	c.logger.Debug().Int("bytes", len(audio)).Msg("Synthesized audio received")
	return audio, nil
}
