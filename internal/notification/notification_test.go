package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/smartdevs17/token-recycle/internal/metrics"
	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/internal/storage"
)

// fakeOutbox keeps outbox rows in memory
type fakeOutbox struct {
	storage.Storage

	mu   sync.Mutex
	rows map[string]*models.Notification
}

func newFakeOutbox(rows ...*models.Notification) *fakeOutbox {
	f := &fakeOutbox{rows: make(map[string]*models.Notification)}
	for _, n := range rows {
		cp := *n
		f.rows[n.ID] = &cp
	}
	return f
}

func (f *fakeOutbox) GetPendingNotifications(ctx context.Context, limit int) ([]*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Notification
	for _, n := range f.rows {
		if n.Status == models.NotificationPending {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeOutbox) UpdateNotificationStatus(ctx context.Context, id string, status string, errorMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.rows[id]
	if !ok {
		return errors.New("unknown notification")
	}
	n.Status = status
	n.Attempts++
	n.Error = errorMsg
	return nil
}

func (f *fakeOutbox) status(id string) (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.rows[id]
	return n.Status, n.Attempts
}

type recordingChannel struct {
	mu        sync.Mutex
	delivered []string
	failWith  error
}

func (r *recordingChannel) Name() string { return "recording" }

func (r *recordingChannel) Deliver(ctx context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, n.RecordID)
	return r.failWith
}

func (r *recordingChannel) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delivered)
}

func pending(id string) *models.Notification {
	return &models.Notification{
		ID:       "n-" + id,
		Type:     models.NotificationTypeRecycle,
		RecordID: id,
		Payload:  &models.RecycleEvent{RecordID: id, Amount: 5_000_000, Reward: 10},
		Status:   models.NotificationPending,
	}
}

func newTestManager(t *testing.T, store storage.Storage, cfg *NotificationManagerConfig) *NotificationManager {
	t.Helper()
	if cfg == nil {
		cfg = &NotificationManagerConfig{}
	}
	cfg.LogLevel = "error"
	nm, err := NewNotificationManager(cfg, store, nil)
	require.NoError(t, err)
	return nm
}

func TestManagerDeliversPublishedNotifications(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := pending("rec-1")
	store := newFakeOutbox(n)
	nm := newTestManager(t, store, &NotificationManagerConfig{Workers: 2, PollInterval: time.Hour})
	ch := &recordingChannel{}
	nm.AddChannel(ch)

	require.NoError(t, nm.Start(context.Background()))
	assert.True(t, nm.IsHealthy())
	assert.Error(t, nm.Start(context.Background()))

	nm.Publish(n)

	require.Eventually(t, func() bool {
		status, _ := store.status(n.ID)
		return status == models.NotificationSent
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, nm.Stop())
	assert.False(t, nm.IsHealthy())
	require.NoError(t, nm.Stop())

	// the startup poll and the publish may both have delivered it
	assert.GreaterOrEqual(t, ch.count(), 1)
	assert.GreaterOrEqual(t, nm.GetStats().TotalNotificationsSent, uint64(1))
}

func TestManagerPicksUpOutboxRowsOnStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newFakeOutbox(pending("a"), pending("b"), pending("c"))
	nm := newTestManager(t, store, &NotificationManagerConfig{Workers: 1, PollInterval: time.Hour})
	ch := &recordingChannel{}
	nm.AddChannel(ch)

	require.NoError(t, nm.Start(context.Background()))
	require.Eventually(t, func() bool {
		for _, id := range []string{"n-a", "n-b", "n-c"} {
			if status, _ := store.status(id); status != models.NotificationSent {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, nm.Stop())

	assert.ElementsMatch(t, []string{"a", "b", "c"}, ch.delivered)
	assert.Equal(t, uint64(1), nm.GetPollerStats()["poll_count"])
}

func TestPublishSkipsRecordsAlreadyInFlight(t *testing.T) {
	nm := newTestManager(t, newFakeOutbox(), &NotificationManagerConfig{QueueSize: 4})

	nm.Publish(pending("rec-1"))
	nm.Publish(pending("rec-1"))
	nm.Publish(pending("rec-2"))

	stats := nm.GetStats()
	assert.Equal(t, 2, stats.QueueLength)
	assert.Equal(t, uint64(1), stats.DuplicatesSkipped)
}

func TestPublishNeverBlocksOnFullQueue(t *testing.T) {
	nm := newTestManager(t, newFakeOutbox(), &NotificationManagerConfig{QueueSize: 1})

	done := make(chan struct{})
	go func() {
		nm.Publish(pending("rec-1"))
		nm.Publish(pending("rec-2"))
		nm.Publish(pending("rec-2"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}

	stats := nm.GetStats()
	assert.Equal(t, 1, stats.QueueLength)
	// a deferred record is not held in flight
	assert.Equal(t, uint64(2), stats.Deferred)
	assert.Equal(t, uint64(0), stats.DuplicatesSkipped)
}

func TestDispatchRetriesUntilMaxRetries(t *testing.T) {
	n := pending("rec-1")
	store := newFakeOutbox(n)
	nm := newTestManager(t, store, &NotificationManagerConfig{MaxRetries: 2})
	nm.AddChannel(&recordingChannel{failWith: errors.New("receiver down")})

	nm.dispatch(context.Background(), n)
	status, attempts := store.status(n.ID)
	assert.Equal(t, models.NotificationPending, status)
	assert.Equal(t, 1, attempts)

	nm.dispatch(context.Background(), n)
	status, attempts = store.status(n.ID)
	assert.Equal(t, models.NotificationFailed, status)
	assert.Equal(t, 2, attempts)

	stats := nm.GetStats()
	assert.Equal(t, uint64(1), stats.TotalRetriesScheduled)
	assert.Equal(t, uint64(1), stats.TotalNotificationsFailed)
	require.NotNil(t, stats.LastError)
	assert.Equal(t, "receiver down", *stats.LastError)
	assert.Equal(t, "receiver down", nm.GetHealth().Error)
}

func TestChannelsFromConfig(t *testing.T) {
	nm := newTestManager(t, newFakeOutbox(), &NotificationManagerConfig{
		LogEvents:  true,
		WebhookURL: "http://127.0.0.1:1/hook",
	})
	assert.Equal(t, []string{"log", "webhook"}, nm.GetChannels())
}

func TestChannelWithMetrics(t *testing.T) {
	m := metrics.NewManager()
	store := newFakeOutbox(pending("ok"), pending("bad"))
	nm, err := NewNotificationManager(&NotificationManagerConfig{LogLevel: "error"}, store, m)
	require.NoError(t, err)

	ch := &recordingChannel{}
	nm.AddChannel(ch)
	nm.dispatch(context.Background(), pending("ok"))
	ch.failWith = errors.New("boom")
	nm.dispatch(context.Background(), pending("bad"))

	p := m.GetPrometheusMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(p.NotificationsSentTotal.WithLabelValues("recording", "recycle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.NotificationFailuresTotal.WithLabelValues("recording", "recycle", "send_error")))
}

func TestLogChannelDeliver(t *testing.T) {
	lc := NewLogChannel(NewNotificationLogger("error"))
	assert.Equal(t, "log", lc.Name())
	assert.NoError(t, lc.Deliver(context.Background(), pending("rec-1")))
}
