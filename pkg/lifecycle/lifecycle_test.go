package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderedStopper struct {
	name  string
	order *[]string
}

func (s *orderedStopper) Stop() {
	*s.order = append(*s.order, s.name)
}

func TestRunStopsComponentsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var order []string

	done := make(chan struct{})
	go func() {
		Run(ctx, &Options{
			PollInterval: time.Hour,
			ShutdownOrder: []Component{
				{Name: "video_relay", Stopper: &orderedStopper{"video_relay", &order}},
				{Name: "telemetry_service", Stopper: &orderedStopper{"telemetry_service", &order}},
				{Name: "telemetry_publisher", Stopper: &orderedStopper{"telemetry_publisher", &order}},
				{Name: "health_monitor", Stopper: &orderedStopper{"health_monitor", &order}},
			},
		})
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	assert.Equal(t, []string{
		"video_relay",
		"telemetry_service",
		"telemetry_publisher",
		"health_monitor",
	}, order)
}

func TestRunInvokesPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var polls atomic.Int64

	done := make(chan struct{})
	go func() {
		Run(ctx, &Options{
			PollInterval: 10 * time.Millisecond,
			Poll:         func() { polls.Add(1) },
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		return polls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
