package mockapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/erp/appinv/internal/infrastructure/logger"
)

const (
	claimsKey    = "mock_claims"
	bearerPrefix = "Bearer "
)

// authenticate rejects requests without a valid bearer token and stores the claims
func authenticate(tokens *tokenIssuer, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) || strings.TrimPrefix(header, bearerPrefix) == "" {
			abortError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required")
			return
		}

		claims, err := tokens.verify(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			log.Debug("token rejected", zap.Error(err), zap.String("path", c.Request.URL.Path))
			message := "Invalid token"
			if err == ErrExpiredToken {
				message = "Token has expired"
			}
			abortError(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
			return
		}

		c.Set(claimsKey, claims)
		ctx, reqLog := logger.WithUserID(c.Request.Context(), logger.GetGinLogger(c), claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		logger.SetGinLogger(c, reqLog)
		c.Next()
	}
}

// claimsFrom returns the claims stored by authenticate
func claimsFrom(c *gin.Context) *Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// serverMetrics holds the HTTP metrics of the sandbox server
type serverMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appinv_mock",
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the sandbox API",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appinv_mock",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency of the sandbox API in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(m.requests, m.duration)
	return m
}

// middleware records one observation per request, labelled by route pattern
func (m *serverMetrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
