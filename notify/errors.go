package notify

import (
	"errors"
)

// Common errors returned by the notify package
var (
	// ErrProviderNotFound is returned when an email provider is not registered
	ErrProviderNotFound = errors.New("email provider not found")
	// ErrProviderConfig is returned when provider configuration is invalid
	ErrProviderConfig = errors.New("invalid provider configuration")
	// ErrSendFailed is returned when an email could not be delivered
	ErrSendFailed = errors.New("failed to send email")
	// ErrTemplateRender is returned when template rendering fails
	ErrTemplateRender = errors.New("failed to render email template")
	// ErrPublishFailed is returned when an event could not be handed to the broker
	ErrPublishFailed = errors.New("failed to publish email event")
	// ErrUnknownKind is returned for events of an unsupported kind
	ErrUnknownKind = errors.New("unknown email event kind")
)
