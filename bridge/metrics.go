package bridge

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks bridge activity for the /metrics endpoint.
type Metrics struct {
	NotificationsTotal *prometheus.CounterVec
	InteractionsTotal  *prometheus.CounterVec
	TicketsCreated     prometheus.Counter
	TicketsClosed      prometheus.Counter
	HandlerErrors      prometheus.Counter
}

// NewMetrics creates bridge metrics and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticketbridge",
			Name:      "notifications_total",
			Help:      "Intercom webhook notifications processed, by topic.",
		}, []string{"topic"}),
		InteractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticketbridge",
			Name:      "interactions_total",
			Help:      "Discord interactions handled, by action.",
		}, []string{"action"}),
		TicketsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge",
			Name:      "tickets_created_total",
			Help:      "Tickets posted to the Discord channel.",
		}),
		TicketsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge",
			Name:      "tickets_closed_total",
			Help:      "Tickets closed from Discord.",
		}),
		HandlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge",
			Name:      "handler_errors_total",
			Help:      "Notification and interaction handler failures.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.NotificationsTotal,
			m.InteractionsTotal,
			m.TicketsCreated,
			m.TicketsClosed,
			m.HandlerErrors,
		)
	}

	return m
}
