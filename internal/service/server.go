// Package service implements the copilot and multiagent decision services
// that the evaluator calls for C2 and C3 trials.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spachava753/incidentbench/internal/metrics"
)

// Handler is a decision service mounted on a router.
type Handler interface {
	Name() string
	Health() gin.H
	Register(r gin.IRoutes)
}

type incidentRequest struct {
	Context string `json:"context" binding:"required"`
}

// NewRouter builds the gin engine for h with /health and /metrics.
func NewRouter(h Handler, gatherer prometheus.Gatherer, m *metrics.ServiceMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestMetrics(m))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Health())
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	h.Register(r)

	return r
}

func requestMetrics(m *metrics.ServiceMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if m == nil {
			return
		}
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// ListenAndServe serves handler on addr until ctx is done, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
