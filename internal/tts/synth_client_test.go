package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthClient_Synthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/speak", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "hello there", req["text"])

		w.Write([]byte("fake-mp3-bytes"))
	}))
	defer server.Close()

	c := NewSynthClient(server.URL, zerolog.Nop())

	audio, err := c.Synthesize(context.Background(), "hello there")
	assert.NoError(t, err)
	assert.Equal(t, []byte("fake-mp3-bytes"), audio)
}

func TestSynthClient_NoContentMeansFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewSynthClient(server.URL, zerolog.Nop())

	audio, err := c.Synthesize(context.Background(), "anything")
	assert.NoError(t, err)
	assert.Nil(t, audio)
}

func TestSynthClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice model missing", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewSynthClient(server.URL, zerolog.Nop())

	_, err := c.Synthesize(context.Background(), "anything")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSynthClient_Unreachable(t *testing.T) {
	c := NewSynthClient("http://127.0.0.1:1", zerolog.Nop())

	_, err := c.Synthesize(context.Background(), "anything")
	assert.Error(t, err)
}
