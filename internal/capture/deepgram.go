package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	DeepgramWSEndpoint = "wss://api.deepgram.com/v1/listen"
	DeepgramModel      = "nova-2"
)

// DeepgramRecognizer streams audio to Deepgram over WebSocket and emits
// finalized transcripts. Implements Recognizer and AudioSink.
type DeepgramRecognizer struct {
	apiKey string
	logger zerolog.Logger
	config *DeepgramConfig

	connMu      sync.Mutex
	conn        *websocket.Conn
	isConnected bool
	closeCh     chan struct{}
}

// DeepgramConfig holds streaming recognition parameters
type DeepgramConfig struct {
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	Language   string `json:"language"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Channels   int    `json:"channels"`
	Punctuate  bool   `json:"punctuate"`
}

// DefaultDeepgramConfig returns sensible defaults
func DefaultDeepgramConfig() *DeepgramConfig {
	return &DeepgramConfig{
		Model:      DeepgramModel,
		Language:   "en-US",
		SampleRate: 16000,
		Encoding:   "linear16",
		Channels:   1,
		Punctuate:  true,
	}
}

// NewDeepgramRecognizer creates a Deepgram streaming recognizer
func NewDeepgramRecognizer(logger zerolog.Logger, config *DeepgramConfig) *DeepgramRecognizer {
	if config == nil {
		config = DefaultDeepgramConfig()
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}

	return &DeepgramRecognizer{
		apiKey: apiKey,
		logger: logger.With().Str("component", "deepgram").Logger(),
		config: config,
	}
}

type deepgramMessage struct {
	Type        string          `json:"type"`
	IsFinal     bool            `json:"is_final,omitempty"`
	SpeechFinal bool            `json:"speech_final,omitempty"`
	Channel     deepgramChannel `json:"channel,omitempty"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives,omitempty"`
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Start connects and begins reading transcripts. Only finalized results are
// forwarded to onFinal; onEnd fires once when the read loop exits.
func (r *DeepgramRecognizer) Start(ctx context.Context, onFinal func(string), onEnd func(error)) error {
	if r.apiKey == "" {
		return fmt.Errorf("deepgram API key not configured")
	}

	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.isConnected {
		return nil
	}

	url := fmt.Sprintf("%s?model=%s&language=%s&encoding=%s&sample_rate=%d&channels=%d&punctuate=%t&interim_results=false",
		DeepgramWSEndpoint,
		r.config.Model,
		r.config.Language,
		r.config.Encoding,
		r.config.SampleRate,
		r.config.Channels,
		r.config.Punctuate,
	)

	header := http.Header{}
	header.Set("Authorization", "Token "+r.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			r.logger.Error().Int("status", resp.StatusCode).Err(err).Msg("Deepgram WebSocket connection failed")
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.isConnected = true
	r.closeCh = make(chan struct{})
	r.logger.Info().Msg("Connected to Deepgram streaming STT")

	go r.readLoop(ctx, conn, onFinal, onEnd)
	return nil
}

func (r *DeepgramRecognizer) readLoop(ctx context.Context, conn *websocket.Conn, onFinal func(string), onEnd func(error)) {
	var endErr error
	defer func() {
		if onEnd != nil {
			onEnd(endErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			endErr = ctx.Err()
			return
		case <-r.closeCh:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug().Msg("Deepgram connection closed normally")
				return
			}
			r.logger.Warn().Err(err).Msg("Error reading Deepgram response")
			endErr = err
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			r.logger.Warn().Err(err).Str("message", string(message)).Msg("Failed to parse Deepgram message")
			continue
		}

		switch msg.Type {
		case "Results":
			if !msg.IsFinal && !msg.SpeechFinal {
				continue
			}
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if alt.Transcript == "" {
				continue
			}
			r.logger.Debug().
				Str("text", alt.Transcript).
				Float64("confidence", alt.Confidence).
				Msg("Deepgram transcript")
			if onFinal != nil {
				onFinal(alt.Transcript)
			}

		case "UtteranceEnd":
			r.logger.Debug().Msg("Deepgram utterance end")

		case "Error":
			r.logger.Error().Str("message", string(message)).Msg("Deepgram error")
		}
	}
}

// SendAudio pushes raw PCM to the recognizer.
func (r *DeepgramRecognizer) SendAudio(audio []byte) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if !r.isConnected || r.conn == nil {
		return fmt.Errorf("not connected")
	}
	return r.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Stop closes the stream.
func (r *DeepgramRecognizer) Stop() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn == nil {
		return nil
	}

	close(r.closeCh)

	closeMsg := []byte(`{"type": "CloseStream"}`)
	if err := r.conn.WriteMessage(websocket.TextMessage, closeMsg); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to send close message")
	}

	err := r.conn.Close()
	r.conn = nil
	r.isConnected = false

	r.logger.Info().Msg("Deepgram streaming stopped")
	return err
}
