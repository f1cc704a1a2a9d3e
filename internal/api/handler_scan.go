package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"checkout-scan-backend/internal/barcode"
	"checkout-scan-backend/internal/capture"
	"checkout-scan-backend/internal/decode"
	"checkout-scan-backend/internal/scan"
	"checkout-scan-backend/internal/store"
)

type openSessionRequest struct {
	DeviceDecoder bool  `json:"device_decoder"`
	Camera        *bool `json:"camera"`
}

// OpenSession creates a new detection session for an operator device.
func (h *Handler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	camera := true
	if req.Camera != nil {
		camera = *req.Camera
	}

	session := h.sessions.Open(decode.Capabilities{
		DeviceDecoder: req.DeviceDecoder,
		Camera:        camera,
	})
	c.JSON(http.StatusCreated, session.Snapshot())
}

// GetSession returns the current session snapshot.
func (h *Handler) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// CloseSession stops and removes a session.
func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// StartSession begins camera scanning.
func (h *Handler) StartSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.Start(c.Request.Context()); err != nil {
		c.JSON(scanStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// StopSession halts scanning and clears the session.
func (h *Handler) StopSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.Stop()
	c.JSON(http.StatusOK, session.Snapshot())
}

type frameRead struct {
	Code       string  `json:"code" binding:"required"`
	Format     string  `json:"format"`
	Confidence float64 `json:"confidence"`
}

type pushFramesRequest struct {
	Reads []frameRead `json:"reads"`
	Image string      `json:"image"` // base64-encoded JPEG or PNG
}

// PushFrames ingests one batch from the operator device: either pre-decoded
// reads from a device decoder, or a raw frame image for software decoding.
func (h *Handler) PushFrames(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req pushFramesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Reads) == 0 && req.Image == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either reads or image is required"})
		return
	}

	now := time.Now()
	for _, r := range req.Reads {
		format := barcode.Format(r.Format)
		if format == "" {
			format = barcode.FormatEAN13
		}
		err := session.PushFrame(capture.Frame{
			Decoded: &barcode.Candidate{
				Code:       r.Code,
				Format:     format,
				Confidence: r.Confidence,
			},
			At: now,
		})
		if err != nil {
			c.JSON(scanStatus(err), gin.H{"error": err.Error()})
			return
		}
	}

	if req.Image != "" {
		raw, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image is not valid base64"})
			return
		}
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image could not be decoded"})
			return
		}
		if err := session.PushFrame(capture.Frame{Image: img, At: now}); err != nil {
			c.JSON(scanStatus(err), gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusAccepted, session.Snapshot())
}

type manualEntryRequest struct {
	Code string `json:"code" binding:"required"`
}

// SubmitManual accepts a typed-in barcode.
func (h *Handler) SubmitManual(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req manualEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := session.SubmitManual(req.Code); err != nil {
		c.JSON(scanStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, session.Snapshot())
}

// RetryLookup re-runs the failed product lookup.
func (h *Handler) RetryLookup(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.Retry(); err != nil {
		c.JSON(scanStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// CancelSession discards the pending candidate or error.
func (h *Handler) CancelSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.Cancel()
	c.JSON(http.StatusOK, session.Snapshot())
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// SetQuantity adjusts the quantity for the pending add.
func (h *Handler) SetQuantity(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session.SetQuantity(req.Quantity)
	c.JSON(http.StatusOK, session.Snapshot())
}

type setModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SetMode switches between camera scanning and manual entry.
func (h *Handler) SetMode(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req setModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := session.SetMode(scan.Mode(req.Mode)); err != nil {
		c.JSON(scanStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

type confirmRequest struct {
	CartCode string `json:"cart_code" binding:"required"`
}

// ConfirmAdd places the resolved product into the cart.
func (h *Handler) ConfirmAdd(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := session.Confirm(c.Request.Context(), req.CartCode)
	if err != nil {
		c.JSON(scanStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item, "session": session.Snapshot()})
}

// GetHistory lists the recently added products, newest first.
func (h *Handler) GetHistory(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": session.History()})
}

func (h *Handler) session(c *gin.Context) (*scan.Session, bool) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return session, true
}

// scanStatus maps pipeline errors to HTTP status codes.
func scanStatus(err error) int {
	switch {
	case errors.Is(err, barcode.ErrInvalidFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scan.ErrWrongMode),
		errors.Is(err, scan.ErrManualOnly),
		errors.Is(err, scan.ErrNotIdle),
		errors.Is(err, scan.ErrRetryUnavailable),
		errors.Is(err, scan.ErrNoResolvedProduct):
		return http.StatusConflict
	case errors.Is(err, capture.ErrCameraUnavailable),
		errors.Is(err, capture.ErrStreamClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrCartNotFound),
		errors.Is(err, store.ErrProductNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
