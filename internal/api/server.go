// Package api wires the HTTP surface from spec.md §6 onto the core
// components (IdentityStore, AuthzKernel, VacationCalendar, RequestEngine,
// ExportProjector, AuditSink, RateGate, TokenCodec). Each handler file
// groups one area of the route table, mirroring how the teacher's
// internal/api split auth/admin/session handlers into separate files.
package api

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vactrail/backend/internal/audit"
	"github.com/vactrail/backend/internal/calendar"
	"github.com/vactrail/backend/internal/config"
	"github.com/vactrail/backend/internal/export"
	"github.com/vactrail/backend/internal/identity"
	"github.com/vactrail/backend/internal/notify"
	"github.com/vactrail/backend/internal/ratelimit"
	"github.com/vactrail/backend/internal/requests"
	"github.com/vactrail/backend/internal/tokens"
)

// Server holds every dependency a handler needs. It carries no behavior of
// its own beyond construction — all logic lives in the core packages or in
// the handler methods defined alongside this file.
type Server struct {
	Pool     *pgxpool.Pool
	Identity *identity.Store
	Calendar *calendar.Calendar
	Requests *requests.Engine
	Export   *export.Projector
	Audit    *audit.Sink
	Gate     *ratelimit.Gate
	Codec    *tokens.Codec
	Mailer   notify.EmailSender
	Config   *config.Config
	Logger   *slog.Logger
}

// NewServer assembles a Server from already-constructed components. Wiring
// (which driver backs which interface, what the SMTP vs SES choice is)
// happens once in cmd/api/main.go; Server itself makes no such decisions.
func NewServer(
	pool *pgxpool.Pool,
	idStore *identity.Store,
	cal *calendar.Calendar,
	reqEngine *requests.Engine,
	proj *export.Projector,
	sink *audit.Sink,
	gate *ratelimit.Gate,
	codec *tokens.Codec,
	mailer notify.EmailSender,
	cfg *config.Config,
	logger *slog.Logger,
) *Server {
	return &Server{
		Pool:     pool,
		Identity: idStore,
		Calendar: cal,
		Requests: reqEngine,
		Export:   proj,
		Audit:    sink,
		Gate:     gate,
		Codec:    codec,
		Mailer:   mailer,
		Config:   cfg,
		Logger:   logger,
	}
}
