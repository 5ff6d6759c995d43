package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/export"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"github.com/gin-gonic/gin"
)

type createMonthRequest struct {
	Period string `json:"periodo"`
	Year   int    `json:"ano"`
	Month  int    `json:"mes"`
}

func (r createMonthRequest) period() (tires.Period, error) {
	if strings.TrimSpace(r.Period) != "" {
		return tires.ParsePeriod(r.Period)
	}
	return tires.NewPeriod(r.Year, r.Month)
}

type monthListResponse struct {
	Months []tires.Month `json:"meses"`
}

type monthActionResponse struct {
	Month   tires.Month `json:"mes"`
	Changed bool        `json:"alterado"`
}

type monthDeletionResponse struct {
	MonthID       string `json:"mesId"`
	OrphanedTires int64  `json:"pneusRestantes"`
}

func (h *httpHandler) handleListMonths(c *gin.Context) {
	months, err := h.tires.ListMonths(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, monthListResponse{Months: nonNilMonths(months)})
}

func (h *httpHandler) handleCreateMonth(c *gin.Context) {
	var request createMonthRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	period, err := request.period()
	if err != nil {
		h.respondError(c, err)
		return
	}
	month, err := h.tires.CreateMonth(c.Request.Context(), period)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.monthsChanged(month.ID)
	c.JSON(http.StatusCreated, month)
}

func (h *httpHandler) handleGetMonth(c *gin.Context) {
	monthID, ok := h.monthIDParam(c)
	if !ok {
		return
	}
	month, err := h.tires.GetMonth(c.Request.Context(), monthID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, month)
}

func (h *httpHandler) handleDeleteMonth(c *gin.Context) {
	monthID, ok := h.monthIDParam(c)
	if !ok {
		return
	}
	deletion, err := h.tires.DeleteMonth(c.Request.Context(), monthID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.monthsChanged(deletion.MonthID)
	h.tiresChanged(monthID)
	c.JSON(http.StatusOK, monthDeletionResponse{MonthID: deletion.MonthID, OrphanedTires: deletion.OrphanedTires})
}

func (h *httpHandler) handleToggleMonth(c *gin.Context) {
	monthID, ok := h.monthIDParam(c)
	if !ok {
		return
	}
	month, err := h.tires.ToggleMonthStatus(c.Request.Context(), monthID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.monthsChanged(month.ID)
	h.tiresChanged(monthID)
	c.JSON(http.StatusOK, month)
}

func (h *httpHandler) handleFinalizeMonth(c *gin.Context) {
	monthID, ok := h.monthIDParam(c)
	if !ok {
		return
	}
	month, changed, err := h.tires.FinalizeMonth(c.Request.Context(), monthID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if changed {
		h.monthsChanged(month.ID)
		h.tiresChanged(monthID)
	}
	c.JSON(http.StatusOK, monthActionResponse{Month: month, Changed: changed})
}

func (h *httpHandler) handleExportMonth(c *gin.Context) {
	monthID, ok := h.monthIDParam(c)
	if !ok {
		return
	}
	layout, err := export.ParseLayout(c.Query("layout"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	artifact, err := h.exporter.Export(c.Request.Context(), monthID, layout, c.GetString(userNameContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Body)
}

func nonNilMonths(months []tires.Month) []tires.Month {
	if months == nil {
		return []tires.Month{}
	}
	return months
}
