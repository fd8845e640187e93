package metrics

// HTTP request metrics for gin, after github.com/zsais/go-gin-prometheus.

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const httpSubsystem = "kitchenbot_http"

var httpLabels = []string{"code", "method", "route"}

var reqCnt = &Metric{
	Name:        "req_total",
	Description: "HTTP requests processed, partitioned by status code, method and route.",
	Type:        "counter_vec",
	Args:        httpLabels,
}

var reqDur = &Metric{
	Name:        "req_dur_ms",
	Description: "HTTP request latencies in milliseconds.",
	Type:        "histogram_vec",
	Args:        httpLabels,
}

var reqSz = &Metric{
	Name:        "req_sz_bytes",
	Description: "Approximate HTTP request sizes in bytes.",
	Type:        "summary_vec",
	Args:        httpLabels,
}

var resSz = &Metric{
	Name:        "resp_sz_bytes",
	Description: "HTTP response sizes in bytes.",
	Type:        "summary_vec",
	Args:        httpLabels,
}

// DefaultMetricsPath is where Handler is mounted.
const DefaultMetricsPath = "/metrics"

// Prometheus records per-route HTTP metrics.
type Prometheus struct {
	reqCnt       *prometheus.CounterVec
	reqDur       *prometheus.HistogramVec
	reqSz, resSz *prometheus.SummaryVec
	gatherer     prometheus.Gatherer

	route func(c *gin.Context) string
}

type NewPrometheusOptions struct {
	// Registerer and Gatherer default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// RouteLabelFn maps a request to its "route" label. Defaults to the
	// matched route template so path parameters do not explode cardinality.
	RouteLabelFn func(c *gin.Context) string
}

func NewPrometheus(opts NewPrometheusOptions) (*Prometheus, error) {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.RouteLabelFn == nil {
		opts.RouteLabelFn = routeTemplate
	}
	p := &Prometheus{gatherer: opts.Gatherer, route: opts.RouteLabelFn}

	var err error
	if p.reqCnt, err = register[*prometheus.CounterVec](opts.Registerer, reqCnt, httpSubsystem); err != nil {
		return nil, err
	}
	if p.reqDur, err = register[*prometheus.HistogramVec](opts.Registerer, reqDur, httpSubsystem); err != nil {
		return nil, err
	}
	if p.reqSz, err = register[*prometheus.SummaryVec](opts.Registerer, reqSz, httpSubsystem); err != nil {
		return nil, err
	}
	if p.resSz, err = register[*prometheus.SummaryVec](opts.Registerer, resSz, httpSubsystem); err != nil {
		return nil, err
	}
	return p, nil
}

// routeTemplate returns the matched route, or "unmatched" for 404s.
func routeTemplate(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return "unmatched"
}

// Middleware records every request except scrapes of the metrics path.
func (p *Prometheus) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == DefaultMetricsPath {
			c.Next()
			return
		}
		start := time.Now()
		reqBytes := approximateRequestSize(c.Request)

		c.Next()

		labels := []string{strconv.Itoa(c.Writer.Status()), c.Request.Method, p.route(c)}
		p.reqCnt.WithLabelValues(labels...).Inc()
		p.reqDur.WithLabelValues(labels...).Observe(MillisecondsSince(start))
		p.reqSz.WithLabelValues(labels...).Observe(float64(reqBytes))
		p.resSz.WithLabelValues(labels...).Observe(float64(c.Writer.Size()))
	}
}

// Handler serves the gathered metrics in the exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// MillisecondsSince returns the elapsed time since start in fractional milliseconds.
func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)
}

func approximateRequestSize(r *http.Request) int {
	s := len(r.Method) + len(r.Proto) + len(r.Host)
	if r.URL != nil {
		s += len(r.URL.Path)
	}
	for name, values := range r.Header {
		s += len(name)
		for _, v := range values {
			s += len(v)
		}
	}
	if r.ContentLength > 0 {
		s += int(r.ContentLength)
	}
	return s
}
