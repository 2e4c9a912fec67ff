package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/wispberry-tech/wispy-guard/core"
)

// EmailConfig configures direct email delivery
type EmailConfig struct {
	AppName               string
	FromEmail             string
	FromName              string
	VerificationURL       string // the code is appended as the "code" query parameter
	PasswordResetURL      string // the token is appended as the "token" query parameter
	VerificationTemplate  *Template
	PasswordResetTemplate *Template
}

// EmailNotifier renders templates and sends them through a Provider.
// It implements core.Notifier for deployments without a broker, and is the delivery end of EmailWorker.
type EmailNotifier struct {
	provider Provider
	engine   *TemplateEngine
	config   EmailConfig
}

var _ core.Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier creates a notifier. Nil templates use the built-in defaults.
func NewEmailNotifier(provider Provider, cfg EmailConfig) *EmailNotifier {
	if cfg.AppName == "" {
		cfg.AppName = "wispy-guard"
	}
	if cfg.VerificationTemplate == nil {
		cfg.VerificationTemplate = DefaultVerificationTemplate()
	}
	if cfg.PasswordResetTemplate == nil {
		cfg.PasswordResetTemplate = DefaultPasswordResetTemplate()
	}
	return &EmailNotifier{
		provider: provider,
		engine:   NewTemplateEngine(),
		config:   cfg,
	}
}

// SendVerificationCode emails a verification code
func (n *EmailNotifier) SendVerificationCode(ctx context.Context, recipient, code string) error {
	return n.Deliver(ctx, Event{Kind: KindVerification, Recipient: recipient, Secret: code})
}

// SendPasswordReset emails a password reset link
func (n *EmailNotifier) SendPasswordReset(ctx context.Context, recipient, token string) error {
	return n.Deliver(ctx, Event{Kind: KindPasswordReset, Recipient: recipient, Secret: token})
}

// Deliver renders and sends the email an event asks for
func (n *EmailNotifier) Deliver(ctx context.Context, event Event) error {
	var tmpl *Template
	var actionURL string

	switch event.Kind {
	case KindVerification:
		tmpl = n.config.VerificationTemplate
		actionURL = withQuery(n.config.VerificationURL, "code", event.Secret)
	case KindPasswordReset:
		tmpl = n.config.PasswordResetTemplate
		actionURL = withQuery(n.config.PasswordResetURL, "token", event.Secret)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, event.Kind)
	}

	message, err := n.engine.Render(tmpl, &TemplateData{
		Recipient: event.Recipient,
		Secret:    event.Secret,
		ActionURL: actionURL,
		AppName:   n.config.AppName,
	})
	if err != nil {
		return err
	}
	if message.FromEmail == "" {
		message.FromEmail = n.config.FromEmail
	}
	if message.FromName == "" {
		message.FromName = n.config.FromName
	}

	if err := n.provider.Send(ctx, message); err != nil {
		return fmt.Errorf("%s: %w", n.provider.Name(), err)
	}
	return nil
}

func withQuery(base, key, value string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
