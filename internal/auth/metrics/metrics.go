package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for registration and token flows.
type Metrics struct {
	UsersRegistered prometheus.Counter
	LoginAttempts   *prometheus.CounterVec
	TokensRefreshed prometheus.Counter
	Logouts         prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UsersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "realreview_users_registered_total",
			Help: "Total number of accounts created",
		}),
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realreview_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"result"}),
		TokensRefreshed: factory.NewCounter(prometheus.CounterOpts{
			Name: "realreview_tokens_refreshed_total",
			Help: "Successful refresh token exchanges",
		}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "realreview_logouts_total",
			Help: "Logouts that revoked at least one token",
		}),
	}
}

func (m *Metrics) IncrementUsersRegistered() {
	m.UsersRegistered.Inc()
}

func (m *Metrics) IncrementLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementTokensRefreshed() {
	m.TokensRefreshed.Inc()
}

func (m *Metrics) IncrementLogouts() {
	m.Logouts.Inc()
}
