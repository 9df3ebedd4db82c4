package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"hookgate/internal/config"
	"hookgate/internal/constants"
	"hookgate/internal/logger"
	apperrors "hookgate/pkg/errors"
	"hookgate/pkg/ratelimit"
)

type HandlerConfig struct {
	SignatureHeader string
	TimestampHeader string
	EventIDHeader   string
	ClientKeyHeader string
	MaxBodyBytes    int64
}

func HandlerConfigFrom(cfg *config.Config) HandlerConfig {
	return HandlerConfig{
		SignatureHeader: cfg.Webhook.SignatureHeader,
		TimestampHeader: cfg.Webhook.TimestampHeader,
		EventIDHeader:   cfg.Webhook.EventIDHeader,
		ClientKeyHeader: cfg.RateLimit.ClientKeyHeader,
		MaxBodyBytes:    cfg.Webhook.MaxBodyBytes,
	}
}

type Handler struct {
	gateway *Gateway
	cfg     HandlerConfig
	logger  logger.Logger
}

func NewHandler(gw *Gateway, cfg HandlerConfig, log logger.Logger) *Handler {
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = constants.DefaultSignatureHeader
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = constants.DefaultMaxBodyBytes
	}
	return &Handler{gateway: gw, cfg: cfg, logger: log}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.POST("/webhooks/:route", h.HandleWebhook)
}

func (h *Handler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.HandleError(c, apperrors.ErrPayloadTooLarge.WithDetail("max_bytes", tooLarge.Limit))
			return
		}
		h.HandleError(c, apperrors.ErrValidation.WithMessage("failed to read request body").WithCause(err))
		return
	}

	req := Request{
		Route:     c.Param("route"),
		Body:      body,
		Signature: c.GetHeader(h.cfg.SignatureHeader),
		ClientKey: ratelimit.ClientKey(c, h.cfg.ClientKeyHeader),
	}
	if h.cfg.TimestampHeader != "" {
		req.Timestamp = c.GetHeader(h.cfg.TimestampHeader)
	}
	if h.cfg.EventIDHeader != "" {
		req.ProviderEventID = c.GetHeader(h.cfg.EventIDHeader)
	}

	resp, err := h.gateway.Handle(c.Request.Context(), req)
	if resp.RateLimit != nil {
		ratelimit.SetHeaders(c, *resp.RateLimit)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	errorID := apperrors.NewErrorID()
	status := apperrors.ToHTTPStatus(err)

	fields := []interface{}{
		"error", err,
		"error_id", errorID,
		"status", status,
		"path", c.Request.URL.Path,
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Webhook failed", fields...)
	} else {
		h.logger.InfowCtx(c.Request.Context(), "Webhook rejected", fields...)
	}

	c.JSON(status, apperrors.ToErrorResponse(err, errorID))
}
