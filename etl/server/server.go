// Package server exposes health, metrics and the processed invoices over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/alapierre/go-factus-etl/etl/events"
	"github.com/alapierre/go-factus-etl/etl/table"
	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "etl.server")

const shutdownTimeout = 10 * time.Second

// InvoiceReader is the read side of the store.
type InvoiceReader interface {
	FindInvoices(ctx context.Context, customerID *string) ([]table.Row, error)
	FindInvoice(ctx context.Context, externalID string) (*table.Row, error)
}

// Pinger reports whether a dependency is reachable. *pgxpool.Pool implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	invoices    InvoiceReader
	broadcaster *events.Broadcaster
	db          Pinger
	router      *gin.Engine
}

func New(invoices InvoiceReader, broadcaster *events.Broadcaster, db Pinger) *Server {
	s := &Server{
		invoices:    invoices,
		broadcaster: broadcaster,
		db:          db,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		invoices := api.Group("/invoices")
		{
			invoices.GET("", s.listInvoices)
			invoices.GET("/events", s.streamInvoices)
			invoices.GET("/:external_id", s.getInvoice)
			invoices.GET("/:external_id/qr.png", s.invoiceQR)
		}
	}

	return router
}

// Run serves on addr until ctx is cancelled, then drains open requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}
	logger.Info("http server stopped")
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"elapsed_ms": time.Since(started).Milliseconds(),
		}).Debug("request handled")
	}
}
