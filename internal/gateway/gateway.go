// Package gateway runs inbound webhooks through verification, throttling, replay
// suppression, business processing and notification hand-off.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"hookgate/internal/config"
	"hookgate/internal/logger"
	"hookgate/internal/replay"
	"hookgate/pkg/cel"
	apperrors "hookgate/pkg/errors"
	"hookgate/pkg/logging"
	"hookgate/pkg/metrics"
	"hookgate/pkg/models"
	"hookgate/pkg/ratelimit"
	"hookgate/pkg/retry"
	"hookgate/pkg/tracing"
)

type Verifier interface {
	Verify(body []byte, signature, timestamp string) bool
	FreshTimestamp(header string) bool
}

type RateLimiter interface {
	Allow(ctx context.Context, route, clientKey string) (ratelimit.Decision, error)
}

type ReplayGuard interface {
	CheckAndRecord(ctx context.Context, eventID string) (replay.Result, error)
	Release(ctx context.Context, eventID string) error
}

type Notifier interface {
	Enqueue(ctx context.Context, task models.NotificationTask) (string, error)
}

type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusDuplicate Status = "duplicate"
	StatusIgnored   Status = "ignored"
)

const defaultTemplate = "payment_success"

// Route is the per-route behaviour resolved from configuration.
type Route struct {
	Name         string
	AcceptIf     *cel.Filter
	Notification config.RouteNotificationConfig
}

// Request is the transport-neutral form of one inbound delivery.
type Request struct {
	Route           string
	Body            []byte
	Signature       string
	Timestamp       string
	ProviderEventID string
	ClientKey       string
}

type Response struct {
	Status             Status `json:"status"`
	EventID            string `json:"event_id,omitempty"`
	NotificationQueued bool   `json:"notification_queued"`

	// RateLimit is set once the limiter has run, including on rejection.
	RateLimit *ratelimit.Decision `json:"-"`
}

type Deps struct {
	Verifier  Verifier
	Limiter   RateLimiter
	Guard     ReplayGuard
	Hasher    *replay.Hasher
	Processor Processor
	// Notifier may be nil, in which case nothing is enqueued.
	Notifier Notifier
}

type Options struct {
	Routes                    map[string]Route
	DefaultRecipient          string
	ReleaseOnTransientFailure bool
}

type Gateway struct {
	deps   Deps
	opts   Options
	logger logger.Logger
}

func New(deps Deps, opts Options, log logger.Logger) *Gateway {
	if deps.Hasher == nil {
		deps.Hasher = replay.NewHasher("")
	}
	if deps.Processor == nil {
		deps.Processor = AcceptProcessor{}
	}
	return &Gateway{deps: deps, opts: opts, logger: log}
}

// RoutesFromConfig compiles the accept filters of every configured route.
func RoutesFromConfig(cfg config.WebhookConfig) (map[string]Route, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}

	routes := make(map[string]Route, len(cfg.Routes))
	for name, rc := range cfg.Routes {
		r := Route{Name: name, Notification: rc.Notification}
		if rc.AcceptIf != "" {
			filter, err := evaluator.NewFilter(rc.AcceptIf)
			if err != nil {
				return nil, fmt.Errorf("route %s: accept_if: %w", name, err)
			}
			r.AcceptIf = filter
		}
		routes[name] = r
	}
	return routes, nil
}

// Handle runs the pipeline. Steps are strictly ordered and stop at the first rejection;
// the returned error is always an *errors.Error carrying the HTTP status.
func (g *Gateway) Handle(ctx context.Context, req Request) (resp Response, err error) {
	start := time.Now()
	ctx = logging.WithRoute(ctx, req.Route)
	ctx, span := tracing.GetTracer("gateway").Start(ctx, "gateway.handle")
	span.SetAttributes(attribute.String("webhook.route", req.Route))

	defer func() {
		outcome := string(resp.Status)
		if err != nil {
			outcome = outcomeOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.String("webhook.outcome", outcome))
		span.End()
		metrics.ObserveWebhook(req.Route, outcome, time.Since(start))
	}()

	route, ok := g.opts.Routes[req.Route]
	if !ok {
		return resp, apperrors.ErrNotFound.WithMessage("unknown webhook route")
	}

	if req.Signature == "" || !g.deps.Verifier.Verify(req.Body, req.Signature, req.Timestamp) {
		g.logger.WarnwCtx(ctx, "Webhook signature rejected",
			"client_key", req.ClientKey,
			"signature_present", req.Signature != "",
			"timestamp_present", req.Timestamp != "",
		)
		return resp, apperrors.ErrAuthenticity
	}
	if !g.deps.Verifier.FreshTimestamp(req.Timestamp) {
		g.logger.WarnwCtx(ctx, "Webhook timestamp outside tolerance",
			"client_key", req.ClientKey,
			"timestamp", req.Timestamp,
		)
		return resp, apperrors.ErrAuthenticity.WithMessage("webhook timestamp outside tolerance")
	}

	decision, limitErr := g.deps.Limiter.Allow(ctx, route.Name, req.ClientKey)
	resp.RateLimit = &decision
	if limitErr != nil {
		g.logger.WarnwCtx(ctx, "Rate limit check failed, allowing request", "error", limitErr)
	}
	if !decision.Allowed {
		g.logger.InfowCtx(ctx, "Webhook rate limited",
			"client_key", req.ClientKey,
			"limit", decision.Limit,
			"retry_after", decision.RetryAfter,
		)
		return resp, apperrors.ErrThrottled.WithDetail("retry_after", decision.RetryAfterSeconds())
	}

	event, err := g.parse(route, req, start)
	if err != nil {
		return resp, err
	}
	ctx = logging.WithEventID(ctx, event.EventID)
	span.SetAttributes(attribute.String("webhook.event_id", event.EventID))
	resp.EventID = event.EventID

	if route.AcceptIf != nil {
		matched, err := route.AcceptIf.Match(ctx, event)
		if err != nil {
			g.logger.WarnwCtx(ctx, "Accept filter failed, ignoring event",
				"expression", route.AcceptIf.Expression(),
				"error", err,
			)
		}
		if !matched {
			resp.Status = StatusIgnored
			return resp, nil
		}
	}

	result, err := g.deps.Guard.CheckAndRecord(ctx, event.EventID)
	if err != nil {
		g.logger.ErrorwCtx(ctx, "Replay check failed", "error", err)
		return resp, apperrors.ErrServiceUnavailable.WithCause(err)
	}
	if result == replay.Duplicate {
		g.logger.InfowCtx(ctx, "Duplicate webhook ignored")
		resp.Status = StatusDuplicate
		return resp, nil
	}

	processed, err := g.deps.Processor.Process(ctx, event)
	if err != nil {
		return resp, g.processingFailed(ctx, event, err)
	}

	resp.Status = StatusAccepted
	resp.NotificationQueued = g.notify(ctx, route, event, processed)

	g.logger.InfowCtx(ctx, "Webhook accepted",
		"provider_id", event.ProviderID,
		"notification_queued", resp.NotificationQueued,
	)
	return resp, nil
}

func (g *Gateway) parse(route Route, req Request, receivedAt time.Time) (models.WebhookEvent, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(req.Body, &payload); err != nil || payload == nil {
		msg := "payload must be a JSON object"
		if err != nil {
			msg = "malformed JSON payload"
		}
		return models.WebhookEvent{}, apperrors.ErrValidation.WithMessage(msg).WithCause(err)
	}

	providerID := req.ProviderEventID
	if providerID == "" {
		providerID = scalarString(payload["id"])
	}

	return models.WebhookEvent{
		EventID:    g.deps.Hasher.EventID(route.Name, providerID, req.Body),
		ProviderID: providerID,
		Route:      route.Name,
		ReceivedAt: receivedAt.UTC(),
		Payload:    payload,
		RawBody:    req.Body,
		Signature:  req.Signature,
	}, nil
}

func (g *Gateway) processingFailed(ctx context.Context, event models.WebhookEvent, err error) error {
	if isPermanent(err) {
		g.logger.WarnwCtx(ctx, "Processor rejected event", "error", err)
		return apperrors.ErrPermanentProcessing.WithCause(err)
	}

	g.logger.WarnwCtx(ctx, "Processor failed transiently", "error", err)
	if g.opts.ReleaseOnTransientFailure {
		if relErr := g.deps.Guard.Release(ctx, event.EventID); relErr != nil {
			g.logger.WarnwCtx(ctx, "Failed to release replay record", "error", relErr)
		}
	}
	return apperrors.ErrTransientProcessing.WithCause(err)
}

func (g *Gateway) notify(ctx context.Context, route Route, event models.WebhookEvent, processed ProcessResult) bool {
	if g.deps.Notifier == nil || route.Notification.Disabled || processed.SkipNotification {
		return false
	}

	task := models.NotificationTask{
		EventID:   event.EventID,
		Route:     route.Name,
		Recipient: firstNonEmpty(
			processed.Recipient,
			payloadField(event, route.Notification.RecipientField),
			route.Notification.Recipient,
			g.opts.DefaultRecipient,
		),
		Template:  firstNonEmpty(processed.Template, route.Notification.Template, defaultTemplate),
		Message:   processed.Message,
		Data:      notificationData(event, processed),
	}

	id, err := g.deps.Notifier.Enqueue(ctx, task)
	if err != nil {
		g.logger.WarnwCtx(ctx, "Notification not queued", "error", err)
		return false
	}
	g.logger.DebugwCtx(ctx, "Notification queued", "task_id", id)
	return true
}

func isPermanent(err error) bool {
	if apperrors.HasCode(err, apperrors.ErrPermanentProcessing.Code) || apperrors.IsValidation(err) {
		return true
	}
	if apperrors.HasCode(err, apperrors.ErrTransientProcessing.Code) {
		return false
	}
	return retry.IsPermanent(err)
}

func outcomeOf(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "error"
}

// notificationData exposes the payload to templates, with processor data taking precedence.
func notificationData(event models.WebhookEvent, processed ProcessResult) map[string]interface{} {
	data := make(map[string]interface{}, len(event.Payload)+len(processed.Data)+1)
	for k, v := range event.Payload {
		data[k] = v
	}
	if _, ok := data["order_id"]; !ok && event.ProviderID != "" {
		data["order_id"] = event.ProviderID
	}
	for k, v := range processed.Data {
		data[k] = v
	}
	return data
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func payloadField(event models.WebhookEvent, path string) string {
	if path == "" {
		return ""
	}
	v, ok := event.Nested(strings.Split(path, ".")...)
	if !ok {
		return ""
	}
	return scalarString(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
