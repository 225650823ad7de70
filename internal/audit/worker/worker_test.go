package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realreview/internal/audit"
	"realreview/internal/audit/metrics"
	id "realreview/pkg/domain"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []*audit.ModerationEvent
	fail bool
}

func (s *recordingSink) Send(_ context.Context, event *audit.ModerationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broker unavailable")
	}
	s.sent = append(s.sent, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestRunForwardsUntilInboxCloses(t *testing.T) {
	sink := &recordingSink{}
	inbox := make(chan *audit.ModerationEvent, 3)
	m := metrics.New(prometheus.NewRegistry())
	for range 3 {
		inbox <- audit.NewEvent(context.Background(), audit.ActionApproved, id.NewImageID(), id.NewUserID(), "")
	}
	close(inbox)

	w := NewWorker(sink, inbox, slog.New(slog.NewTextHandler(io.Discard, nil)), m)
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, 3, sink.count())
	assert.InDelta(t, 3, testutil.ToFloat64(m.EventsForwarded), 0)
}

func TestRunCountsFailuresAndContinues(t *testing.T) {
	sink := &recordingSink{fail: true}
	inbox := make(chan *audit.ModerationEvent, 2)
	m := metrics.New(prometheus.NewRegistry())
	inbox <- audit.NewEvent(context.Background(), audit.ActionRejected, id.NewImageID(), id.NewUserID(), "")
	inbox <- audit.NewEvent(context.Background(), audit.ActionRejected, id.NewImageID(), id.NewUserID(), "")
	close(inbox)

	w := NewWorker(sink, inbox, slog.New(slog.NewTextHandler(io.Discard, nil)), m)
	require.NoError(t, w.Run(context.Background()))

	assert.Zero(t, sink.count())
	assert.InDelta(t, 2, testutil.ToFloat64(m.ForwardFailed), 0)
}

func TestRunStopsOnCancel(t *testing.T) {
	inbox := make(chan *audit.ModerationEvent)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- NewWorker(&recordingSink{}, inbox, nil, nil).Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
