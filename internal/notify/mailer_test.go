package notify_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vactrail/backend/internal/config"
	"github.com/vactrail/backend/internal/notify"
)

func TestDevMailer_SendInvitation_LogsAndSucceeds(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := &notify.DevMailer{Logger: logger}

	companyID := uuid.New()
	err := m.SendInvitation(context.Background(), companyID, "user@example.com", "https://app.vactrail.example/invite/abc")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "user@example.com")
	assert.Contains(t, buf.String(), companyID.String())
}

func TestDevMailer_SendPasswordReset_BuildsResetLink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := &notify.DevMailer{Logger: logger}

	err := m.SendPasswordReset(context.Background(), uuid.New(), "user@example.com", "tok123", "https://app.vactrail.example")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "https://app.vactrail.example/auth/reset?token=tok123")
}

func TestNewMailer_NonProductionPicksDevMailer(t *testing.T) {
	cfg := &config.Config{Env: "development"}
	sender := notify.NewMailer(cfg, nil, slog.Default())
	_, ok := sender.(*notify.DevMailer)
	assert.True(t, ok)
}

func TestNewMailer_ProductionPicksProductionMailer(t *testing.T) {
	cfg := &config.Config{Env: "production"}
	sender := notify.NewMailer(cfg, nil, slog.Default())
	_, ok := sender.(*notify.ProductionMailer)
	assert.True(t, ok)
}
