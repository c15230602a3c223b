package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPProvider_RejectsPrivateHost(t *testing.T) {
	_, err := NewSMTPProvider(SMTPConfig{
		Host: "127.0.0.1",
		Port: 587,
		From: "noreply@vactrail.example",
	})
	require.Error(t, err)
}

func TestNewSMTPProvider_RejectsInvalidFrom(t *testing.T) {
	_, err := NewSMTPProvider(SMTPConfig{
		Host: "smtp.vactrail.example",
		Port: 587,
		From: "not-an-email",
	})
	require.Error(t, err)
}

func TestNewSMTPProvider_AcceptsValidConfig(t *testing.T) {
	p, err := NewSMTPProvider(SMTPConfig{
		Host: "smtp.vactrail.example",
		Port: 587,
		From: "noreply@vactrail.example",
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp.vactrail.example", p.Config.Host)
}

func TestSMTPProvider_GetSubject_KnownTemplates(t *testing.T) {
	p := &SMTPProvider{}

	cases := map[EmailTemplate]string{
		TemplateInviteUser:        "You've been invited to vactrail",
		TemplatePasswordReset:     "Reset your password",
		TemplateEmailVerification: "Verify your email address",
		TemplatePasswordChanged:   "Your password was changed",
	}
	for tmpl, want := range cases {
		assert.Equal(t, want, p.getSubject(tmpl))
	}
}

func TestSMTPProvider_GetSubject_UnknownTemplateFallsBack(t *testing.T) {
	p := &SMTPProvider{}
	assert.Equal(t, "Notification", p.getSubject(EmailTemplate("unknown")))
}

func TestSMTPProvider_BuildBody_IncludesInviteLink(t *testing.T) {
	p := &SMTPProvider{}
	body := p.buildBody(EmailPayload{
		Template: TemplateInviteUser,
		Data: map[string]any{
			"role": "manager",
			"link": "https://app.vactrail.example/invite/abc123",
		},
	})
	assert.Contains(t, body, "manager")
	assert.Contains(t, body, "https://app.vactrail.example/invite/abc123")
}

func TestSMTPProvider_BuildBody_PasswordResetMentionsExpiry(t *testing.T) {
	p := &SMTPProvider{}
	body := p.buildBody(EmailPayload{
		Template: TemplatePasswordReset,
		Data:     map[string]any{"link": "https://app.vactrail.example/reset/xyz"},
	})
	assert.Contains(t, body, "expires in 1 hour")
}

func TestSanitizeEmailAddress_RejectsCRLFInjection(t *testing.T) {
	_, err := sanitizeEmailAddress("user@example.com\r\nBcc: evil@example.com")
	require.Error(t, err)
}

func TestSanitizeEmailAddress_AcceptsPlainAddress(t *testing.T) {
	got, err := sanitizeEmailAddress("user@example.com")
	require.NoError(t, err)
	assert.Contains(t, got, "user@example.com")
}
