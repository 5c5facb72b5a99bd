package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bikeservice/internal/config"
	"bikeservice/internal/database"
	"bikeservice/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeliverer struct {
	mu    sync.Mutex
	err   error
	calls []*models.Notification
}

func (f *fakeDeliverer) Deliver(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, n)
	return f.err
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// blockingDeliverer holds a delivery open until the worker context ends.
type blockingDeliverer struct {
	started chan struct{}
}

func (b *blockingDeliverer) Deliver(ctx context.Context, _ *models.Notification) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func samplePayload() models.NotificationPayload {
	return models.NotificationPayload{
		BookingID:   "b-1",
		BookingDate: "2030-01-15",
		Lines:       []models.NotificationLine{{Name: "Tune-up", Price: decimal.RequireFromString("30.00")}},
		Total:       decimal.RequireFromString("30.00"),
	}
}

func TestProcessNotificationSuccess(t *testing.T) {
	db := newTestDB(t)
	deliverer := &fakeDeliverer{}
	w := NewNotificationWorker(db, deliverer, nil, config.NotifierConfig{}, nil)
	ctx := context.Background()

	w.Emit(ctx, models.NotifyBookingConfirmation, "ann@example.com", samplePayload())
	n, ok := w.tryIntake()
	require.True(t, ok, "expected notification in intake queue")
	w.accept(ctx, n)

	stored, err := db.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.NotNil(t, stored.SentAt)
	assert.Equal(t, 1, deliverer.count())
	assert.Contains(t, deliverer.calls[0].Payload, `"booking_id":"b-1"`)
}

func TestProcessNotificationRetry(t *testing.T) {
	db := newTestDB(t)
	deliverer := &fakeDeliverer{err: errors.New("smtp down")}
	w := NewNotificationWorker(db, deliverer, nil, config.NotifierConfig{MaxRetries: 3, InitialDelay: time.Minute}, nil)
	ctx := context.Background()

	w.Emit(ctx, models.NotifyNewBooking, "owner@example.com", samplePayload())
	n, _ := w.tryIntake()
	w.accept(ctx, n)

	stored, err := db.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationRetry, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "smtp down", stored.LastError)
	assert.True(t, stored.NextAttemptAt.After(time.Now()), "next attempt must be in the future")

	due, err := db.GetDueNotifications(ctx, 10, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestProcessNotificationFailGoesToDeadLetter(t *testing.T) {
	db := newTestDB(t)
	mr, client := newTestRedis(t)
	deliverer := &fakeDeliverer{err: errors.New("mailbox unavailable")}
	w := NewNotificationWorker(db, deliverer, client, config.NotifierConfig{MaxRetries: 1}, nil)
	ctx := context.Background()

	w.Emit(ctx, models.NotifyReadyForDelivery, "ann@example.com", samplePayload())
	n, _ := w.tryIntake()
	w.accept(ctx, n)
	assert.Equal(t, 0, deliverer.count(), "with redis the id is queued, not delivered inline")

	queued, ok := w.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, n.ID, queued.ID)
	w.process(ctx, queued)

	stored, err := db.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationFailed, stored.Status)

	dead, err := mr.List("bikeservice:notifications:dead")
	require.NoError(t, err)
	assert.Len(t, dead, 1)
}

func TestProcessNotificationClaimedOnce(t *testing.T) {
	db := newTestDB(t)
	deliverer := &fakeDeliverer{}
	w := NewNotificationWorker(db, deliverer, nil, config.NotifierConfig{}, nil)
	ctx := context.Background()

	n := &models.Notification{Kind: models.NotifyNewBooking, Recipient: "owner@example.com", Payload: "{}"}
	_, err := db.CreateNotification(ctx, n)
	require.NoError(t, err)

	w.process(ctx, n)
	w.process(ctx, n)

	assert.Equal(t, 1, deliverer.count())
}

func TestEmitDropsWhenQueueFull(t *testing.T) {
	db := newTestDB(t)
	w := NewNotificationWorker(db, &fakeDeliverer{}, nil, config.NotifierConfig{QueueSize: 1}, nil)
	ctx := context.Background()

	w.Emit(ctx, models.NotifyNewBooking, "a@example.com", samplePayload())
	w.Emit(ctx, models.NotifyNewBooking, "b@example.com", samplePayload())

	assert.Len(t, w.intake, 1)
	n, _ := w.tryIntake()
	assert.Equal(t, "a@example.com", n.Recipient)
}

func TestEmitSkipsEmptyRecipient(t *testing.T) {
	db := newTestDB(t)
	w := NewNotificationWorker(db, &fakeDeliverer{}, nil, config.NotifierConfig{}, nil)

	w.Emit(context.Background(), models.NotifyNewBooking, "", samplePayload())

	assert.Empty(t, w.intake)
}

func TestStartDeliversEmittedNotification(t *testing.T) {
	db := newTestDB(t)
	deliverer := &fakeDeliverer{}
	w := NewNotificationWorker(db, deliverer, nil, config.NotifierConfig{PollInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	w.Emit(ctx, models.NotifyBookingConfirmation, "ann@example.com", samplePayload())

	require.Eventually(t, func() bool { return deliverer.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestStartPersistsQueuedOnShutdown(t *testing.T) {
	db := newTestDB(t)
	deliverer := &fakeDeliverer{}
	w := NewNotificationWorker(db, deliverer, nil, config.NotifierConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Emit(ctx, models.NotifyNewBooking, "owner@example.com", samplePayload())
	w.Start(ctx)

	assert.Equal(t, 0, deliverer.count())
	due, err := db.GetDueNotifications(context.Background(), 10, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "owner@example.com", due[0].Recipient)
}

func TestStartRedeliversAbandonedClaim(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	n := &models.Notification{Kind: models.NotifyBookingConfirmation, Recipient: "ann@example.com", Payload: "{}"}
	_, err := db.CreateNotification(ctx, n)
	require.NoError(t, err)
	// A worker that died after claiming leaves the row in sending.
	claimed, err := db.ClaimNotification(ctx, n.ID, time.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	deliverer := &fakeDeliverer{}
	w := NewNotificationWorker(db, deliverer, nil, config.NotifierConfig{
		PollInterval: 10 * time.Millisecond,
		ClaimLease:   50 * time.Millisecond,
	}, nil)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		w.Start(runCtx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return deliverer.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		stored, err := db.GetNotification(ctx, n.ID)
		return err == nil && stored.Status == models.NotificationSent
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownDuringDeliveryReleasesNotification(t *testing.T) {
	db := newTestDB(t)
	deliverer := &blockingDeliverer{started: make(chan struct{})}
	w := NewNotificationWorker(db, deliverer, nil, config.NotifierConfig{PollInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	w.Emit(ctx, models.NotifyNewBooking, "owner@example.com", samplePayload())

	select {
	case <-deliverer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery did not start")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	due, err := db.GetDueNotifications(context.Background(), 10, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.NotificationPending, due[0].Status)
	assert.Equal(t, 0, due[0].Attempts, "an interrupted delivery is not an attempt")
	assert.Equal(t, context.Canceled.Error(), due[0].LastError)
}

func TestEmitAfterStopPersistsToOutbox(t *testing.T) {
	db := newTestDB(t)
	deliverer := &fakeDeliverer{}
	w := NewNotificationWorker(db, deliverer, nil, config.NotifierConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Start(ctx)

	w.Emit(context.Background(), models.NotifyBookingConfirmation, "late@example.com", samplePayload())

	assert.Empty(t, w.intake)
	assert.Equal(t, 0, deliverer.count())
	due, err := db.GetDueNotifications(context.Background(), 10, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "late@example.com", due[0].Recipient)
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5), "delay must be capped")
	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(0))
}

func TestRetryPolicyExhausted(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3}

	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))
	assert.False(t, RetryPolicy{}.Exhausted(100))
}
