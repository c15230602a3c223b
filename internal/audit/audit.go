// Package audit is the AuditSink: an append-only event stream recorded in
// the same transaction as the operation it describes, so a rollback takes
// the audit row with it (spec.md §4.4, invariant I6).
package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vactrail/backend/internal/apperr"
)

// Event is one immutable audit row. There is deliberately no Update/Delete
// on Sink — every code path that could violate "append-only" simply does
// not exist.
type Event struct {
	ID             uuid.UUID
	CompanyID      uuid.UUID
	ActorID        uuid.UUID // uuid.Nil for system-initiated events
	Action         string
	EntityType     string
	EntityID       uuid.UUID // uuid.Nil when the action has no single target
	BeforeSnapshot map[string]interface{}
	AfterSnapshot  map[string]interface{}
	IP             string
	UserAgent      string
	RequestID      string
	CreatedAt      time.Time
}

// Filter narrows Query results. Zero-value fields are not applied.
type Filter struct {
	CompanyID  uuid.UUID
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   uuid.UUID
	After      time.Time
	Before     time.Time
}

// Sink records and queries audit events.
type Sink struct{}

// NewSink builds a Sink. It holds no state of its own: every call takes an
// explicit pgx.Tx (or a pool satisfying the same Querier interface) so
// callers compose audit writes into their own transaction.
func NewSink() *Sink { return &Sink{} }

// Querier is satisfied by both pgx.Tx and *pgxpool.Pool, so Query can run
// either inside a caller's transaction or directly against the pool for a
// read-only listing.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Record writes ev within tx's transaction. If tx rolls back, so does ev —
// that is the entire point of taking a transaction handle instead of the
// pool.
func (s *Sink) Record(ctx context.Context, tx pgx.Tx, ev Event) error {
	before, err := marshalSnapshot(ev.BeforeSnapshot)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "audit: marshaling before snapshot", err)
	}
	after, err := marshalSnapshot(ev.AfterSnapshot)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "audit: marshaling after snapshot", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_events
			(company_id, actor_id, action, entity_type, entity_id, before_snapshot, after_snapshot, ip, user_agent, request_id)
		VALUES ($1, nullif($2, '00000000-0000-0000-0000-000000000000'::uuid), $3, $4,
			nullif($5, '00000000-0000-0000-0000-000000000000'::uuid), $6, $7, nullif($8, '')::inet, $9, $10)
	`,
		ev.CompanyID, ev.ActorID, ev.Action, ev.EntityType, ev.EntityID, before, after, ev.IP, ev.UserAgent, ev.RequestID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "audit: inserting event", err)
	}
	return nil
}

func marshalSnapshot(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Query lists events matching filter, newest first (created_at DESC, id
// DESC tiebreak), per spec.md §4.4. CompanyID is required on every filter —
// there is no cross-tenant listing, even for Admin.
func (s *Sink) Query(ctx context.Context, q Querier, filter Filter, limit, offset int) ([]Event, error) {
	if filter.CompanyID == uuid.Nil {
		return nil, apperr.New(apperr.KindInvalidInput, "audit: query filter requires company_id")
	}

	sql := `
		SELECT id, company_id, coalesce(actor_id, '00000000-0000-0000-0000-000000000000'::uuid), action,
			entity_type, coalesce(entity_id, '00000000-0000-0000-0000-000000000000'::uuid),
			before_snapshot, after_snapshot, coalesce(host(ip), ''), user_agent, request_id, created_at
		FROM audit_events
		WHERE company_id = $1
	`
	args := []interface{}{filter.CompanyID}
	arg := func(v interface{}) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.ActorID != uuid.Nil {
		sql += " AND actor_id = " + arg(filter.ActorID)
	}
	if filter.Action != "" {
		sql += " AND action = " + arg(filter.Action)
	}
	if filter.EntityType != "" {
		sql += " AND entity_type = " + arg(filter.EntityType)
	}
	if filter.EntityID != uuid.Nil {
		sql += " AND entity_id = " + arg(filter.EntityID)
	}
	if !filter.After.IsZero() {
		sql += " AND created_at >= " + arg(filter.After)
	}
	if !filter.Before.IsZero() {
		sql += " AND created_at <= " + arg(filter.Before)
	}

	sql += " ORDER BY created_at DESC, id DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "audit: querying events", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var before, after []byte
		if err := rows.Scan(&ev.ID, &ev.CompanyID, &ev.ActorID, &ev.Action, &ev.EntityType, &ev.EntityID,
			&before, &after, &ev.IP, &ev.UserAgent, &ev.RequestID, &ev.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "audit: scanning event", err)
		}
		if len(before) > 0 {
			if err := json.Unmarshal(before, &ev.BeforeSnapshot); err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, "audit: unmarshaling before snapshot", err)
			}
		}
		if len(after) > 0 {
			if err := json.Unmarshal(after, &ev.AfterSnapshot); err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, "audit: unmarshaling after snapshot", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "audit: iterating events", err)
	}

	return events, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
