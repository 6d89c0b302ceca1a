package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecognizer records its lifecycle and lets tests drive callbacks.
type fakeRecognizer struct {
	starts   int
	stops    int
	startErr error
	onFinal  func(string)
	onEnd    func(error)
}

func (f *fakeRecognizer) Start(_ context.Context, onFinal func(string), onEnd func(error)) error {
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.onFinal = onFinal
	f.onEnd = onEnd
	return nil
}

func (f *fakeRecognizer) Stop() error {
	f.stops++
	return nil
}

func newTestSession(rec *fakeRecognizer) *Session {
	return NewSession(rec, nil, zerolog.Nop())
}

func TestSession_DeliversFinalTranscripts(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(rec)

	var got []string
	s.OnTranscript(func(text string) { got = append(got, text) })

	s.Start(context.Background())
	require.True(t, s.Active())

	rec.onFinal("what is the weather")
	rec.onFinal("  turn on the lights  ")

	assert.Equal(t, []string{"what is the weather", "turn on the lights"}, got)
}

func TestSession_DiscardsEmptyTranscripts(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(rec)

	var got []string
	s.OnTranscript(func(text string) { got = append(got, text) })

	s.Start(context.Background())
	rec.onFinal("")
	rec.onFinal("   ")

	assert.Empty(t, got)
}

func TestSession_StartIdempotent(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(rec)

	s.Start(context.Background())
	s.Start(context.Background())

	assert.Equal(t, 1, rec.starts)
}

func TestSession_StartFailureNotFatal(t *testing.T) {
	rec := &fakeRecognizer{startErr: errors.New("no microphone")}
	s := newTestSession(rec)

	s.Start(context.Background())
	assert.False(t, s.Active())

	// Recovery: a later start succeeds.
	rec.startErr = nil
	s.Start(context.Background())
	assert.True(t, s.Active())
}

func TestSession_StopSuppressesLateEvents(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(rec)

	var got []string
	s.OnTranscript(func(text string) { got = append(got, text) })

	s.Start(context.Background())
	staleFinal := rec.onFinal
	staleEnd := rec.onEnd
	s.Stop()

	require.Equal(t, 1, rec.stops)
	assert.False(t, s.Active())

	// Events from the stopped run are detached.
	staleFinal("late transcript")
	assert.Empty(t, got)

	s.SetRestartProbe(func() bool { return true })
	staleEnd(nil)
	assert.Equal(t, 1, rec.starts)
}

func TestSession_RestartsWhileListening(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(rec)

	listening := true
	s.SetRestartProbe(func() bool { return listening })

	s.Start(context.Background())
	require.Equal(t, 1, rec.starts)

	// Spontaneous end while listening restarts capture.
	rec.onEnd(errors.New("silence timeout"))
	assert.Equal(t, 2, rec.starts)
	assert.True(t, s.Active())

	// Spontaneous end while not listening leaves capture down.
	listening = false
	rec.onEnd(nil)
	assert.Equal(t, 2, rec.starts)
	assert.False(t, s.Active())
}

func TestSession_RestartProbeMayInspectSession(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(rec)

	// A probe that queries the session back must not deadlock against the
	// end handler.
	s.SetRestartProbe(func() bool { return !s.Active() })

	s.Start(context.Background())
	rec.onEnd(errors.New("silence timeout"))

	assert.True(t, s.Active())
	assert.Equal(t, 2, rec.starts)
}

func TestSession_TranscriptAfterRestartStillDelivered(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(rec)

	var got []string
	s.OnTranscript(func(text string) { got = append(got, text) })
	s.SetRestartProbe(func() bool { return true })

	s.Start(context.Background())
	rec.onEnd(nil)
	rec.onFinal("hello again")

	assert.Equal(t, []string{"hello again"}, got)
}
