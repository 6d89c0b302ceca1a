package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexvoice/internal/bus"
)

// New registers against the default Prometheus registry, so the whole file
// shares one Metrics instance.
var testMetrics = New()

func TestMetrics_BindCountsEvents(t *testing.T) {
	eventBus := bus.NewEventBus()
	testMetrics.Bind(eventBus)

	eventBus.PublishSync(bus.Event{Type: bus.EventTypeWindowScored})
	eventBus.PublishSync(bus.Event{Type: bus.EventTypeWindowScored})
	eventBus.PublishSync(bus.Event{Type: bus.EventTypeSpeechDetected})
	eventBus.PublishSync(bus.Event{Type: bus.EventTypeBargeIn})
	eventBus.PublishSync(bus.Event{Type: bus.EventTypeGenerationStarted})
	eventBus.PublishSync(bus.Event{Type: bus.EventTypeGenerationFinal})
	eventBus.PublishSync(bus.Event{
		Type: bus.EventTypeStateChanged,
		Data: map[string]any{"new_state": "speaking"},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(testMetrics.WindowsScored))
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.SpeechDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.BargeIns))
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.GenerationsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.GenerationsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.StateChanges.WithLabelValues("speaking")))

	// Unknown state payloads are ignored rather than counted under a bogus
	// label.
	eventBus.PublishSync(bus.Event{Type: bus.EventTypeStateChanged})
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.StateChanges.WithLabelValues("speaking")))
}

func TestHandler_ServesMetrics(t *testing.T) {
	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}
