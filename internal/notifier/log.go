package notifier

import (
	"context"

	"hookgate/internal/constants"
	"hookgate/internal/logger"
	"hookgate/pkg/models"
	"hookgate/pkg/retry"
)

// LogChannel writes rendered notifications to the log. Used in development.
type LogChannel struct {
	logger logger.Logger
}

func NewLogChannel(log logger.Logger) *LogChannel {
	return &LogChannel{logger: log}
}

func (c *LogChannel) Name() string { return constants.ChannelLog }

func (c *LogChannel) Deliver(ctx context.Context, task models.NotificationTask) error {
	text, err := Render(task)
	if err != nil {
		return retry.NewFatalError(err)
	}
	c.logger.InfowCtx(ctx, "Notification",
		"task_id", task.ID,
		"recipient", task.Recipient,
		"template", task.Template,
		"text", text,
	)
	return nil
}
