package metrics

import (
	"strconv"
	"sync"

	"bikeservice/internal/events"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bikeservice"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings created.",
		},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_transitions_total",
			Help:      "Booking status changes by target status.",
		},
		[]string{"to"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery outcomes by kind.",
		},
		[]string{"kind", "result"},
	)

	notificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the intake queue was full.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bookingsCreated,
			statusTransitions,
			notifications,
			notificationsDropped,
		)
	})
}

// ObserveHTTP records one handled request.
func ObserveHTTP(route string, code int, seconds float64) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}

// IncNotification counts a delivery outcome: sent, retry or failed.
func IncNotification(kind, result string) {
	notifications.WithLabelValues(kind, result).Inc()
}

func IncNotificationDropped() {
	notificationsDropped.Inc()
}

// SubscribeBookingEvents counts booking lifecycle events published on bus.
func SubscribeBookingEvents(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingCreated, func(_ *events.Event) error {
		bookingsCreated.Inc()
		return nil
	})

	onStatus := func(event *events.Event) error {
		var payload events.BookingEventPayload
		if err := event.Decode(&payload); err != nil {
			return err
		}
		statusTransitions.WithLabelValues(payload.Status).Inc()
		return nil
	}
	bus.Subscribe(events.EventBookingStatusChanged, onStatus)
	bus.Subscribe(events.EventBookingCancelled, onStatus)
}
