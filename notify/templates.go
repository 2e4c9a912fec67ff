package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// TemplateEngine handles email template rendering
type TemplateEngine struct {
	funcMap template.FuncMap
}

// NewTemplateEngine creates a new template engine
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{
		funcMap: template.FuncMap{},
	}
}

// Render renders an email template for the given recipient
func (te *TemplateEngine) Render(tmpl *Template, data *TemplateData) (*Message, error) {
	message := &Message{
		To:        data.Recipient,
		FromEmail: tmpl.FromEmail,
		FromName:  tmpl.FromName,
	}

	subject, err := te.renderString(tmpl.Subject, data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render subject: %v", ErrTemplateRender, err)
	}
	message.Subject = subject

	textBody, err := te.renderString(tmpl.TextBody, data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render text body: %v", ErrTemplateRender, err)
	}
	message.TextBody = textBody

	if tmpl.HTMLBody != "" {
		htmlBody, err := te.renderString(tmpl.HTMLBody, data)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to render HTML body: %v", ErrTemplateRender, err)
		}
		message.HTMLBody = htmlBody
	}

	return message, nil
}

func (te *TemplateEngine) renderString(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Funcs(te.funcMap).Option("missingkey=error").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// AddTemplateFunc adds a custom function to the template engine
func (te *TemplateEngine) AddTemplateFunc(name string, fn interface{}) {
	te.funcMap[name] = fn
}
