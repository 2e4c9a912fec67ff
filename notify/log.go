package notify

import (
	"context"
	"log/slog"
)

// LogProvider writes emails to the structured log instead of sending them. Meant for development.
type LogProvider struct {
	logger *slog.Logger
}

// NewLogProvider creates a provider that logs through slog.Default
func NewLogProvider(config map[string]interface{}) (Provider, error) {
	return &LogProvider{logger: slog.Default()}, nil
}

func (p *LogProvider) Name() string { return "log" }

func (p *LogProvider) Send(ctx context.Context, message *Message) error {
	p.logger.InfoContext(ctx, "Email",
		"to", message.To,
		"subject", message.Subject,
		"body", message.TextBody)
	return nil
}

func (p *LogProvider) Close() error { return nil }
