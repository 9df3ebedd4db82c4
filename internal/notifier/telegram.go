package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"hookgate/internal/constants"
	"hookgate/pkg/models"
	"hookgate/pkg/retry"
	"hookgate/pkg/tracing"
)

// TelegramChannel sends rendered templates through the Bot API sendMessage method.
type TelegramChannel struct {
	bot *bot.Bot
}

// NewTelegramChannel does not call getMe; a bad token surfaces as a permanent delivery failure.
func NewTelegramChannel(apiURL, token string, client *http.Client) (*TelegramChannel, error) {
	if apiURL == "" {
		apiURL = constants.DefaultTelegramAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	}

	b, err := bot.New(token,
		bot.WithSkipGetMe(),
		bot.WithServerURL(strings.TrimRight(apiURL, "/")),
		bot.WithHTTPClient(constants.DefaultHTTPTimeout, tracedClient{client: client}),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &TelegramChannel{bot: b}, nil
}

func (c *TelegramChannel) Name() string { return constants.ChannelTelegram }

func (c *TelegramChannel) Deliver(ctx context.Context, task models.NotificationTask) error {
	if task.Recipient == "" {
		return retry.NewFatalError(errors.New("telegram: empty recipient"))
	}

	text, err := Render(task)
	if err != nil {
		return retry.NewFatalError(err)
	}

	_, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:             task.Recipient,
		Text:               text,
		ParseMode:          tgmodels.ParseModeHTML,
		LinkPreviewOptions: &tgmodels.LinkPreviewOptions{IsDisabled: bot.True()},
	})
	if err != nil {
		return classifyTelegramError(err)
	}
	return nil
}

// classifyTelegramError marks request errors the Bot API will keep rejecting as permanent.
// Flood control, 5xx and transport failures stay retryable.
func classifyTelegramError(err error) error {
	var flood *bot.TooManyRequestsError
	if errors.As(err, &flood) {
		return fmt.Errorf("telegram: flood control, retry after %ds: %w", flood.RetryAfter, err)
	}

	var migrated *bot.MigrateError
	if errors.As(err, &migrated) {
		return retry.NewFatalError(fmt.Errorf("telegram: chat migrated to %d: %w", migrated.MigrateToChatID, err))
	}

	switch {
	case errors.Is(err, bot.ErrorBadRequest),
		errors.Is(err, bot.ErrorUnauthorized),
		errors.Is(err, bot.ErrorForbidden),
		errors.Is(err, bot.ErrorNotFound),
		errors.Is(err, bot.ErrorConflict):
		return retry.NewFatalError(fmt.Errorf("telegram: %w", err))
	}
	return fmt.Errorf("telegram: %w", err)
}

// tracedClient propagates the span context and keeps the token-bearing URL out of errors.
type tracedClient struct {
	client *http.Client
}

func (c tracedClient) Do(req *http.Request) (*http.Response, error) {
	tracing.InjectHTTP(req.Context(), req.Header)
	resp, err := c.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, fmt.Errorf("%s %s: %w", urlErr.Op, path.Base(req.URL.Path), urlErr.Err)
		}
		return nil, err
	}
	return resp, nil
}
