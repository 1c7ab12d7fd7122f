package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PageRendersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galeria_page_renders_total",
		Help: "Pages rendered, by template.",
	}, []string{"template"})

	PageDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galeria_page_denials_total",
		Help: "Requests to gated pages turned away for lack of a login, by template.",
	}, []string{"template"})

	RenderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galeria_render_errors_total",
		Help: "Template rendering failures, by template.",
	}, []string{"template"})

	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galeria_logins_total",
		Help: "Login attempts, by method (password, oidc) and result (success, failure).",
	}, []string{"method", "result"})

	UsersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "galeria_users_total",
		Help: "Total number of registered users in the database.",
	})
)
