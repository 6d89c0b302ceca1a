// Package brain provides the streaming generation link to CortexBrain.
package brain

import "errors"

// Common errors
var (
	ErrNotConnected = errors.New("generation channel not connected")
	ErrClosed       = errors.New("generation channel closed")
)

// Message types on the generation channel
const (
	TypeQuery     = "query"
	TypeCancel    = "cancel"
	TypePartial   = "partial"
	TypeFinal     = "final"
	TypeError     = "error"
	TypeCancelled = "cancelled"
)

// QueryMessage starts a generation
type QueryMessage struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Question string `json:"question"`
}

// CancelMessage aborts a generation in progress
type CancelMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ServerMessage is an inbound frame from the backend
type ServerMessage struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// QueryRequest is the synchronous fallback request body
type QueryRequest struct {
	Question string `json:"question"`
}

// QueryResponse is the synchronous fallback response body
type QueryResponse struct {
	Answer string `json:"answer"`
}
