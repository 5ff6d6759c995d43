package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/photos"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"github.com/gin-gonic/gin"
)

const (
	photoFormField    = "fotos"
	maxPhotoFormBytes = 64 << 20
)

type tireListResponse struct {
	Tires []tires.Tire `json:"pneus"`
}

type tireActionResponse struct {
	Tire    tires.Tire `json:"pneu"`
	Changed bool       `json:"alterado"`
}

func (h *httpHandler) handleListTires(c *gin.Context) {
	monthID, ok := h.monthIDParam(c)
	if !ok {
		return
	}
	if _, err := h.tires.GetMonth(c.Request.Context(), monthID); err != nil {
		h.respondError(c, err)
		return
	}
	list := h.tires.ListTires
	if c.Query("ordem") == "numero" {
		list = h.tires.ListTiresByNumber
	}
	records, err := list(c.Request.Context(), monthID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tireListResponse{Tires: nonNilTires(records)})
}

func (h *httpHandler) handleCreateTire(c *gin.Context) {
	monthID, ok := h.monthIDParam(c)
	if !ok {
		return
	}
	tire, err := h.tires.CreateTire(c.Request.Context(), monthID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.tiresChanged(monthID, tire.ID)
	h.monthsChanged(monthID.String())
	c.JSON(http.StatusCreated, tire)
}

func (h *httpHandler) handleGetTire(c *gin.Context) {
	ref, ok := h.tireRefParam(c)
	if !ok {
		return
	}
	tire, err := h.tires.GetTire(c.Request.Context(), ref)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tire)
}

func (h *httpHandler) handleSaveTire(c *gin.Context) {
	ref, ok := h.tireRefParam(c)
	if !ok {
		return
	}
	var form tires.TireForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	tire, err := h.tires.SaveTire(c.Request.Context(), ref, form, nil)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.tiresChanged(ref.MonthID, tire.ID)
	c.JSON(http.StatusOK, tire)
}

func (h *httpHandler) handleDeleteTire(c *gin.Context) {
	ref, ok := h.tireRefParam(c)
	if !ok {
		return
	}
	if err := h.tires.DeleteTire(c.Request.Context(), ref); err != nil {
		h.respondError(c, err)
		return
	}
	h.tiresChanged(ref.MonthID, ref.TireID)
	h.monthsChanged(ref.MonthID.String())
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDuplicateTire(c *gin.Context) {
	ref, ok := h.tireRefParam(c)
	if !ok {
		return
	}
	tire, err := h.tires.DuplicateTire(c.Request.Context(), ref)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.tiresChanged(ref.MonthID, tire.ID)
	h.monthsChanged(ref.MonthID.String())
	c.JSON(http.StatusCreated, tire)
}

// handleFinalizeTire accepts an optional form body that is saved before locking.
func (h *httpHandler) handleFinalizeTire(c *gin.Context) {
	ref, ok := h.tireRefParam(c)
	if !ok {
		return
	}
	var form *tires.TireForm
	if c.Request.ContentLength != 0 {
		var payload tires.TireForm
		if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		} else if err == nil {
			form = &payload
		}
	}
	tire, changed, err := h.tires.FinalizeTire(c.Request.Context(), ref, form)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if changed {
		h.tiresChanged(ref.MonthID, tire.ID)
	}
	c.JSON(http.StatusOK, tireActionResponse{Tire: tire, Changed: changed})
}

// handleUploadPhotos stores the multipart "fotos" files and appends their URLs to the tire.
func (h *httpHandler) handleUploadPhotos(c *gin.Context) {
	ref, ok := h.tireRefParam(c)
	if !ok {
		return
	}
	current, err := h.tires.GetTire(c.Request.Context(), ref)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if current.Finalized() {
		h.respondError(c, tires.ErrTireFinalized)
		return
	}

	if err := c.Request.ParseMultipartForm(maxPhotoFormBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	var headers []*multipart.FileHeader
	if c.Request.MultipartForm != nil {
		headers = c.Request.MultipartForm.File[photoFormField]
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_photos"})
		return
	}
	if len(headers) > tires.MaxPhotos {
		h.respondError(c, photos.ErrTooManyPhotos)
		return
	}

	uploads := make([]photos.Upload, 0, len(headers))
	for _, header := range headers {
		uploads = append(uploads, photos.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Open: func() (io.ReadCloser, error) {
				return header.Open()
			},
		})
	}
	urls, err := h.uploader.UploadBatch(c.Request.Context(), ref, uploads)
	if err != nil {
		h.respondError(c, err)
		return
	}
	tire, err := h.tires.AttachPhotos(c.Request.Context(), ref, urls)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.tiresChanged(ref.MonthID, tire.ID)
	c.JSON(http.StatusOK, tire)
}

func (h *httpHandler) handlePhotoFile(c *gin.Context) {
	file, err := h.files.Open(c.Param("key"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		h.respondError(c, err)
		return
	}
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}

func nonNilTires(records []tires.Tire) []tires.Tire {
	if records == nil {
		return []tires.Tire{}
	}
	return records
}
