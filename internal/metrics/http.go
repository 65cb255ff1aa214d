package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// unmatchedRoute labels requests that matched no route so that probing paths do not
// create new series.
const unmatchedRoute = "unmatched"

// HTTPMetricsMiddleware counts and times every request by method, route pattern and
// status code.
func HTTPMetricsMiddleware(meterProvider metric.MeterProvider, namespace string) (gin.HandlerFunc, error) {
	requests, err := newCounterWithLatency(
		meterProvider.Meter(namespace),
		namespace+"_http_requests_total",
		namespace+"_http_request_duration_seconds",
		"HTTP requests",
		"{request}",
	)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		requests.record(c.Request.Context(), time.Since(start).Seconds(),
			attribute.String("method", c.Request.Method),
			attribute.String("path", route),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
	}, nil
}
