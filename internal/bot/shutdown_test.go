package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestShutdownStopsInReverseOrder(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)

	var order []string
	for _, name := range []string{"storage", "event_bus", "executor", "monitor"} {
		name := name
		sh.Add(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sh.Shutdown())
	assert.Equal(t, []string{"monitor", "executor", "event_bus", "storage"}, order)

	// Services are released after the first shutdown.
	order = nil
	require.NoError(t, sh.Shutdown())
	assert.Empty(t, order)
}

func TestShutdownJoinsErrors(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)
	errStore := errors.New("close failed")

	closed := false
	sh.AddCloser("storage", func() error { return errStore })
	sh.Add("monitor", func(context.Context) error { closed = true; return nil })

	err := sh.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, errStore)
	assert.Contains(t, err.Error(), "storage")
	assert.True(t, closed, "a failing service does not stop the rest")
}

func TestShutdownAbandonsSlowService(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), 50*time.Millisecond)

	release := make(chan struct{})
	defer close(release)
	sh.Add("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	err := sh.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck: shutdown timeout")
}
