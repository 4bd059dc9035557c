package echoapi

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// batchSecretMiddleware only lets through requests bearing exactly `secret`. An empty secret locks the route.
func batchSecretMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
			const prefix = "Bearer "
			if secret == "" || !strings.HasPrefix(auth, prefix) {
				return errInvalidBatchSecret
			}
			if subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(secret)) != 1 {
				return errInvalidBatchSecret
			}
			return next(ctx)
		}
	}
}

// metricsMiddleware counts and times requests by route.
func metricsMiddleware(reg prometheus.Registerer) echo.MiddlewareFunc {
	factory := promauto.With(reg)
	requests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "onhold",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})
	duration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "onhold",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latencies by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err) // commits the response so the status code is known
			}

			method, route := ctx.Request().Method, ctx.Path()
			requests.WithLabelValues(method, route, strconv.Itoa(ctx.Response().Status)).Inc()
			duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
