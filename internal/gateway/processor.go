package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"hookgate/internal/constants"
	apperrors "hookgate/pkg/errors"
	"hookgate/pkg/metrics"
	"hookgate/pkg/models"
	"hookgate/pkg/tracing"
)

// Processor is the business collaborator that acts on a confirmed event. Errors carrying
// ErrPermanentProcessing (or marked fatal) are not retried by the provider; anything else is
// reported as transient.
type Processor interface {
	Process(ctx context.Context, event models.WebhookEvent) (ProcessResult, error)
}

// ProcessResult optionally shapes the notification sent for the event.
type ProcessResult struct {
	Recipient        string                 `json:"recipient,omitempty"`
	Template         string                 `json:"template,omitempty"`
	Message          string                 `json:"message,omitempty"`
	Data             map[string]interface{} `json:"data,omitempty"`
	SkipNotification bool                   `json:"skip_notification,omitempty"`
}

// AcceptProcessor accepts every event without side effects.
type AcceptProcessor struct{}

func (AcceptProcessor) Process(context.Context, models.WebhookEvent) (ProcessResult, error) {
	return ProcessResult{}, nil
}

// HTTPProcessor forwards events to the order service.
type HTTPProcessor struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func NewHTTPProcessor(url string, timeout time.Duration, headers map[string]string) *HTTPProcessor {
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	return &HTTPProcessor{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

type processRequest struct {
	EventID    string                 `json:"event_id"`
	ProviderID string                 `json:"provider_id,omitempty"`
	Route      string                 `json:"route"`
	ReceivedAt time.Time              `json:"received_at"`
	Payload    map[string]interface{} `json:"payload"`
}

func (p *HTTPProcessor) Process(ctx context.Context, event models.WebhookEvent) (ProcessResult, error) {
	body, err := json.Marshal(processRequest{
		EventID:    event.EventID,
		ProviderID: event.ProviderID,
		Route:      event.Route,
		ReceivedAt: event.ReceivedAt,
		Payload:    event.Payload,
	})
	if err != nil {
		return ProcessResult{}, apperrors.ErrPermanentProcessing.WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return ProcessResult{}, apperrors.ErrPermanentProcessing.WithCause(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", event.EventID)
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	tracing.InjectHTTP(ctx, req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.ProcessorRequestsTotal.WithLabelValues(event.Route, "error").Inc()
		return ProcessResult{}, apperrors.ErrTransientProcessing.WithCause(fmt.Errorf("processor request failed: %w", err))
	}
	defer resp.Body.Close()

	metrics.ProcessorRequestsTotal.WithLabelValues(event.Route, strconv.Itoa(resp.StatusCode)).Inc()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= constants.HTTPStatusOKMin && resp.StatusCode < constants.HTTPStatusOKMax:
		var result ProcessResult
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &result); err != nil {
				// The event was processed; a body we cannot read only costs the notification details.
				return ProcessResult{}, nil
			}
		}
		return result, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return ProcessResult{}, apperrors.ErrTransientProcessing.WithCause(
			fmt.Errorf("processor returned status %d", resp.StatusCode))

	default:
		return ProcessResult{}, apperrors.ErrPermanentProcessing.WithCause(
			fmt.Errorf("processor returned status %d: %s", resp.StatusCode, truncate(raw, 256)))
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
