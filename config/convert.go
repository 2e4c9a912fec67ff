package config

import (
	"github.com/wispberry-tech/wispy-guard/core"
	"github.com/wispberry-tech/wispy-guard/notify"
)

// CoreSecurity maps the security section onto core.SecurityConfig. Password character rules keep their defaults.
func (c *Config) CoreSecurity() core.SecurityConfig {
	sc := core.DefaultSecurityConfig()
	sc.PasswordMinLength = c.Security.PasswordMinLength
	sc.MaxLoginAttempts = c.Security.MaxLoginAttempts
	sc.LockoutDuration = c.Security.LockoutDuration
	sc.AccessTokenTTL = c.Security.AccessTokenTTL
	sc.RefreshTokenTTL = c.Security.RefreshTokenTTL
	sc.RotateRefreshTokens = c.Security.RotateRefreshTokens
	sc.VerificationCodeTTL = c.Security.VerificationCodeTTL
	sc.PasswordResetTTL = c.Security.PasswordResetTTL
	sc.SecureCookies = c.Security.SecureCookies
	return sc
}

func (c *Config) CoreAbuse() core.AbuseConfig {
	return core.AbuseConfig{
		Interval:      c.Abuse.Interval,
		MaxRequests:   c.Abuse.MaxRequests,
		WindowMinutes: c.Abuse.WindowMinutes,
	}
}

func (c *Config) CoreAudit() core.AuditConfig {
	return core.AuditConfig{
		Async:        c.Audit.Async,
		BufferSize:   c.Audit.BufferSize,
		WriteTimeout: c.Audit.WriteTimeout,
	}
}

func (c *Config) Rabbit() notify.RabbitMQConfig {
	return notify.RabbitMQConfig{
		URL:                     c.RabbitMQ.URL,
		Exchange:                c.RabbitMQ.Exchange,
		VerificationQueue:       c.RabbitMQ.VerificationQueue,
		VerificationRoutingKey:  c.RabbitMQ.VerificationRoutingKey,
		PasswordResetQueue:      c.RabbitMQ.PasswordResetQueue,
		PasswordResetRoutingKey: c.RabbitMQ.PasswordResetRoutingKey,
	}
}

func (c *Config) Mail() notify.EmailConfig {
	return notify.EmailConfig{
		AppName:          c.Email.AppName,
		FromEmail:        c.Email.FromEmail,
		FromName:         c.Email.FromName,
		VerificationURL:  c.Email.VerificationURL,
		PasswordResetURL: c.Email.PasswordResetURL,
	}
}

// ProviderOptions returns the options map for notify.GetProvider
func (c *Config) ProviderOptions() map[string]interface{} {
	return map[string]interface{}{
		"api_key": c.Email.APIKey,
	}
}
