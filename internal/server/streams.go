package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	streamEventMonths    = "months"
	streamEventTires     = "tires"
	streamEventHeartbeat = "heartbeat"
	streamEventError     = "error"
)

type tiresSnapshot struct {
	Month tires.Month  `json:"mes"`
	Tires []tires.Tire `json:"pneus"`
}

type snapshotFunc func(ctx context.Context) (any, error)

func (h *httpHandler) handleMonthsStream(c *gin.Context) {
	h.streamSnapshots(c, realtime.MonthsTopic(), streamEventMonths, func(ctx context.Context) (any, error) {
		months, err := h.tires.ListMonths(ctx)
		if err != nil {
			return nil, err
		}
		return monthListResponse{Months: nonNilMonths(months)}, nil
	})
}

func (h *httpHandler) handleTiresStream(c *gin.Context) {
	monthID, ok := h.monthIDParam(c)
	if !ok {
		return
	}
	if _, err := h.tires.GetMonth(c.Request.Context(), monthID); err != nil {
		h.respondError(c, err)
		return
	}
	h.streamSnapshots(c, realtime.TiresTopic(monthID.String()), streamEventTires, func(ctx context.Context) (any, error) {
		month, err := h.tires.GetMonth(ctx, monthID)
		if err != nil {
			return nil, err
		}
		records, err := h.tires.ListTires(ctx, monthID)
		if err != nil {
			return nil, err
		}
		return tiresSnapshot{Month: month, Tires: nonNilTires(records)}, nil
	})
}

// streamSnapshots sends a full snapshot on connect and after every message on topic.
func (h *httpHandler) streamSnapshots(c *gin.Context, topic, eventName string, snapshot snapshotFunc) {
	ctx := c.Request.Context()
	messages, cleanup := h.realtime.Subscribe(ctx, topic)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	send := func() bool {
		payload, err := snapshot(ctx)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Error("stream snapshot failed", zap.String("topic", topic), zap.Error(err))
				c.SSEvent(streamEventError, gin.H{"error": "snapshot_failed"})
			}
			return false
		}
		c.SSEvent(eventName, payload)
		return true
	}

	if !send() {
		c.Writer.Flush()
		return
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case _, ok := <-messages:
			if !ok {
				return false
			}
			return send()
		case <-ticker.C:
			c.SSEvent(streamEventHeartbeat, gin.H{"ts": time.Now().UTC().Unix()})
			return true
		}
	})
}
