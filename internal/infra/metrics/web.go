package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestsTotal, submissionsRejectedTotal) }

var httpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_http_requests_total",
		Help: "Requests served by the web facade, labeled by route and status code.",
	},
	[]string{"route", "code"},
)

var submissionsRejectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_submissions_rejected_total",
		Help: "Submissions rejected before reaching the poller, labeled by reason.",
	},
	[]string{"reason"}, // 'cooldown', 'in_flight', 'invalid_input', 'identity'
)

func IncHTTPRequest(route string, code int) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func IncSubmissionRejected(reason string) {
	submissionsRejectedTotal.WithLabelValues(norm(reason)).Inc()
}
