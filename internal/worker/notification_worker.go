package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"bikeservice/internal/config"
	"bikeservice/internal/domain"
	"bikeservice/internal/metrics"
	"bikeservice/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Deliverer sends one notification through an outbound channel.
type Deliverer interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

// outcomeTimeout bounds recording a delivery result after the worker
// context has been cancelled.
const outcomeTimeout = 5 * time.Second

// NotificationWorker persists emitted notifications into the outbox and
// drains it. Work is picked from the intake queue first, then from the
// redis list, then by polling due rows.
type NotificationWorker struct {
	store         domain.NotificationStore
	deliverer     Deliverer
	redis         *redis.Client
	retryPolicy   RetryPolicy
	intake        chan *models.Notification
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	claimLease    time.Duration
	logger        *zerolog.Logger
	now           func() time.Time

	// stopMu orders Emit against shutdown: once stopped is set, nothing
	// more enters the intake queue.
	stopMu  sync.RWMutex
	stopped bool
}

// NewNotificationWorker builds a worker with sane defaults. redisClient may be nil.
func NewNotificationWorker(
	store domain.NotificationStore,
	deliverer Deliverer,
	redisClient *redis.Client,
	cfg config.NotifierConfig,
	logger *zerolog.Logger,
) *NotificationWorker {
	retry := RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = models.NotificationQueueSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	if cfg.RedisQueue == "" {
		cfg.RedisQueue = "bikeservice:notifications"
	}
	if cfg.DeadLetterKey == "" {
		cfg.DeadLetterKey = cfg.RedisQueue + ":dead"
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &NotificationWorker{
		store:         store,
		deliverer:     deliverer,
		redis:         redisClient,
		retryPolicy:   retry,
		intake:        make(chan *models.Notification, cfg.QueueSize),
		redisQueueKey: cfg.RedisQueue,
		deadLetterKey: cfg.DeadLetterKey,
		pollInterval:  cfg.PollInterval,
		batchSize:     cfg.BatchSize,
		claimLease:    cfg.ClaimLease,
		logger:        logger,
		now:           time.Now,
	}
}

// Emit queues a notification without blocking. When the intake queue is
// full the notification is dropped and counted. After the worker has
// stopped, notifications are written straight to the outbox.
func (w *NotificationWorker) Emit(_ context.Context, kind, recipient string, payload models.NotificationPayload) {
	if recipient == "" {
		w.logger.Warn().Str("kind", kind).Msg("Notification without recipient skipped")
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error().Err(err).Str("kind", kind).Msg("Failed to encode notification payload")
		return
	}

	n := &models.Notification{
		Kind:      kind,
		Recipient: recipient,
		Payload:   string(data),
		Status:    models.NotificationPending,
	}

	w.stopMu.RLock()
	defer w.stopMu.RUnlock()
	if w.stopped {
		w.persistLate(n)
		return
	}

	select {
	case w.intake <- n:
	default:
		metrics.IncNotificationDropped()
		w.logger.Warn().Str("kind", kind).Str("recipient", recipient).Msg("Notification queue full, dropped")
	}
}

func (w *NotificationWorker) persistLate(n *models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), outcomeTimeout)
	defer cancel()
	if _, err := w.store.CreateNotification(ctx, n); err != nil {
		w.logger.Error().Err(err).Str("kind", n.Kind).Str("recipient", n.Recipient).Msg("Failed to persist notification after shutdown")
		return
	}
	w.logger.Info().Int64("notification_id", n.ID).Str("kind", n.Kind).Msg("Notification stored for delivery after restart")
}

// Start runs the delivery loop until ctx is done. Pending intake items are
// written to the outbox before returning so they survive a restart.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

	for {
		select {
		case <-ctx.Done():
			w.stop()
			w.drainIntake()
			return
		default:
		}

		if n, ok := w.tryIntake(); ok {
			w.accept(ctx, n)
			continue
		}

		if n, ok := w.tryRedis(ctx); ok {
			w.process(ctx, n)
			continue
		}

		due, err := w.store.GetDueNotifications(ctx, w.batchSize, w.staleBefore())
		if err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("Failed to fetch due notifications")
		}
		for _, n := range due {
			w.process(ctx, n)
		}
		if len(due) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
		case n := <-w.intake:
			w.accept(ctx, n)
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *NotificationWorker) stop() {
	w.stopMu.Lock()
	w.stopped = true
	w.stopMu.Unlock()
}

// staleBefore is the claim time before which a sending row is abandoned.
func (w *NotificationWorker) staleBefore() time.Time {
	return w.now().Add(-w.claimLease)
}

func (w *NotificationWorker) tryIntake() (*models.Notification, bool) {
	select {
	case n := <-w.intake:
		return n, true
	default:
		return nil, false
	}
}

// accept persists n and schedules it. If the outbox is unavailable a single
// direct delivery attempt is made.
func (w *NotificationWorker) accept(ctx context.Context, n *models.Notification) {
	if _, err := w.store.CreateNotification(ctx, n); err != nil {
		w.logger.Error().Err(err).Str("kind", n.Kind).Msg("Failed to persist notification, delivering directly")
		if err := w.deliverer.Deliver(ctx, n); err != nil {
			metrics.IncNotification(n.Kind, "failed")
			w.logger.Error().Err(err).Str("kind", n.Kind).Str("recipient", n.Recipient).Msg("Direct delivery failed")
			return
		}
		metrics.IncNotification(n.Kind, "sent")
		return
	}

	if w.redis != nil {
		err := w.redis.LPush(ctx, w.redisQueueKey, strconv.FormatInt(n.ID, 10)).Err()
		if err == nil {
			return
		}
		w.logger.Warn().Err(err).Int64("notification_id", n.ID).Msg("Redis push failed, delivering locally")
	}
	w.process(ctx, n)
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (*models.Notification, bool) {
	if w.redis == nil {
		return nil, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("Redis BRPOP failed")
		}
		return nil, false
	}
	if len(res) != 2 {
		return nil, false
	}

	id, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		w.logger.Warn().Str("value", res[1]).Msg("Invalid notification id in redis queue")
		return nil, false
	}
	n, err := w.store.GetNotification(ctx, id)
	if err != nil {
		w.logger.Warn().Err(err).Int64("notification_id", id).Msg("Queued notification not found")
		return nil, false
	}
	return n, true
}

func (w *NotificationWorker) process(ctx context.Context, n *models.Notification) {
	claimed, err := w.store.ClaimNotification(ctx, n.ID, w.staleBefore())
	if err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to claim notification")
		return
	}
	if !claimed {
		return
	}

	deliverErr := w.deliverer.Deliver(ctx, n)

	// The outcome is recorded even if ctx was cancelled during delivery.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeTimeout)
	defer cancel()

	if deliverErr != nil {
		if ctx.Err() != nil {
			w.release(recordCtx, n, deliverErr)
			return
		}
		w.retryOrFail(recordCtx, n, deliverErr)
		return
	}

	if err := w.store.UpdateNotificationStatus(recordCtx, n.ID, models.NotificationSent, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to mark notification sent")
	}
	metrics.IncNotification(n.Kind, "sent")
	w.logger.Debug().Int64("notification_id", n.ID).Str("kind", n.Kind).Msg("Notification sent")
}

// release returns an interrupted delivery to pending without counting an attempt.
func (w *NotificationWorker) release(ctx context.Context, n *models.Notification, cause error) {
	if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationPending, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to release notification")
		return
	}
	w.logger.Info().Int64("notification_id", n.ID).Msg("Delivery interrupted by shutdown, released")
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, n *models.Notification, cause error) {
	attempt := n.Attempts + 1
	if w.retryPolicy.Exhausted(attempt) {
		if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to mark notification failed")
		}
		w.pushDeadLetter(ctx, n)
		metrics.IncNotification(n.Kind, "failed")
		w.logger.Error().Err(cause).Int64("notification_id", n.ID).Int("attempts", attempt).Msg("Notification delivery failed permanently")
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to schedule notification retry")
	}
	metrics.IncNotification(n.Kind, "retry")
	w.logger.Warn().Err(cause).Int64("notification_id", n.ID).Time("next_attempt_at", next).Msg("Notification delivery failed, will retry")
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, n *models.Notification) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to push dead letter")
	}
}

// drainIntake persists whatever is still queued so the poller picks it up later.
func (w *NotificationWorker) drainIntake() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		n, ok := w.tryIntake()
		if !ok {
			return
		}
		if _, err := w.store.CreateNotification(ctx, n); err != nil {
			w.logger.Error().Err(err).Str("kind", n.Kind).Msg("Failed to persist queued notification on shutdown")
		}
	}
}
