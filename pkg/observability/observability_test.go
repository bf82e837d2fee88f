package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "sentinel", config.ServiceName)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.False(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// Recording on a disabled provider is a safe no-op.
	p.RecordPollCycle(context.Background(), 3)
	p.RecordTransition(context.Background(), "trigger_warning", "WARNING_TRIGGERED")
	p.RecordError(context.Background(), "monitor", errors.New("boom"))
	p.RecordDuration(context.Background(), "poll", 10*time.Millisecond)

	_, span := p.StartSpan(context.Background(), "test")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNilConfigUsesDefaults(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, p)
}
