package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alapierre/go-factus-etl/etl/store"
	"github.com/alapierre/go-factus-etl/etl/table"
	"github.com/alapierre/go-factus-etl/png"
	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
)

const (
	heartbeatInterval = 15 * time.Second
	minQRSize         = 64
	maxQRSize         = 1024
)

func (s *Server) health(c *gin.Context) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			logger.WithError(err).Warn("database ping failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// GET /api/v1/invoices?customer_id=
func (s *Server) listInvoices(c *gin.Context) {
	var customerID *string
	if v, ok := c.GetQuery("customer_id"); ok && strings.TrimSpace(v) != "" {
		customerID = &v
	}

	rows, err := s.invoices.FindInvoices(c.Request.Context(), customerID)
	if err != nil {
		logger.WithError(err).Error("failed to list invoices")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices": rows,
		"count":    len(rows),
	})
}

// GET /api/v1/invoices/:external_id
func (s *Server) getInvoice(c *gin.Context) {
	row, ok := s.findInvoice(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, row)
}

// GET /api/v1/invoices/:external_id/qr.png?size=
func (s *Server) invoiceQR(c *gin.Context) {
	row, ok := s.findInvoice(c)
	if !ok {
		return
	}
	if row.QRURL == nil || *row.QRURL == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice has no QR reference"})
		return
	}

	size := png.DefaultSize
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minQRSize || n > maxQRSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 64 and 1024"})
			return
		}
		size = n
	}

	data, err := png.QR(*row.QRURL, size)
	if err != nil {
		logger.WithError(err).WithField("external_id", row.ExternalID).Error("failed to render qr")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// GET /api/v1/invoices/events streams every processed invoice as server-sent events.
func (s *Server) streamInvoices(c *gin.Context) {
	rows, unsubscribe := s.broadcaster.Subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case row, open := <-rows:
			if !open {
				return false
			}
			c.SSEvent("invoice", row)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", "")
			return true
		}
	})
}

func (s *Server) findInvoice(c *gin.Context) (*table.Row, bool) {
	externalID := c.Param("external_id")
	r, err := s.invoices.FindInvoice(c.Request.Context(), externalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return nil, false
		}
		logger.WithError(err).WithField("external_id", externalID).Error("failed to get invoice")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return nil, false
	}
	return r, true
}
