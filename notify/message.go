package notify

// Kind identifies which email an Event asks for
type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password_reset"
)

// Event is the message published to the broker for each outbound email.
// Secret carries the verification code or the raw reset token.
type Event struct {
	Kind      Kind   `json:"kind"`
	Recipient string `json:"recipient"`
	Secret    string `json:"code"`
}

// Message represents a composed email ready to send
type Message struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	TextBody  string `json:"text_body"`
	HTMLBody  string `json:"html_body"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// Template defines the structure of an email template
type Template struct {
	Subject   string `json:"subject"`    // Email subject template
	TextBody  string `json:"text_body"`  // Plain text body template
	HTMLBody  string `json:"html_body"`  // HTML body template (optional)
	FromEmail string `json:"from_email"` // From email address
	FromName  string `json:"from_name"`  // From name
}

// TemplateData contains data passed to email templates
type TemplateData struct {
	Recipient string `json:"recipient"`
	Secret    string `json:"secret"`
	ActionURL string `json:"action_url"`
	AppName   string `json:"app_name"`
}

// DefaultVerificationTemplate returns the built-in verification code email
func DefaultVerificationTemplate() *Template {
	return &Template{
		Subject: "Verify your {{.AppName}} email address",
		TextBody: `Your verification code is: {{.Secret}}

You can also verify your email address by following this link:
{{.ActionURL}}

This code expires in 24 hours.`,
	}
}

// DefaultPasswordResetTemplate returns the built-in password reset email
func DefaultPasswordResetTemplate() *Template {
	return &Template{
		Subject: "Reset your {{.AppName}} password",
		TextBody: `A password reset was requested for your account.

Use the following link to choose a new password:
{{.ActionURL}}

If you did not request this, you can ignore this email.`,
	}
}
