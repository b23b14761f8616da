package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/storage"
)

// Logger records audit events. Implementations must never drop a record
// silently: a failed write is returned to the caller so the enclosing
// transaction can decide whether to abort.
type Logger interface {
	Record(ctx context.Context, event *Event) error
}

// TxLogger is a Logger that can also record inside a caller-owned
// transaction, for events that must commit atomically with a state change.
type TxLogger interface {
	Logger
	RecordTx(ctx context.Context, tx *sql.Tx, event *Event) error
}

// DBLogger persists audit events to the entitlement_events table.
type DBLogger struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewDBLogger creates a database-backed audit logger.
func NewDBLogger(db *sql.DB, log *logrus.Logger) *DBLogger {
	return &DBLogger{db: db, log: log}
}

// Record inserts an audit event.
func (l *DBLogger) Record(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO entitlement_events (organization_id, event_type, module_key, old_status, new_status, actor_id, reason, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now()
	err := l.db.QueryRowContext(ctx, query,
		event.OrganizationID,
		event.EventType,
		event.ModuleKey,
		event.OldStatus,
		event.NewStatus,
		event.ActorID,
		event.Reason,
		event.RequestID,
		now,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	event.CreatedAt = now
	return nil
}

// RecordTx inserts an audit event inside an existing transaction so the event
// commits atomically with the state change it describes.
func (l *DBLogger) RecordTx(ctx context.Context, tx *sql.Tx, event *Event) error {
	query := `
		INSERT INTO entitlement_events (organization_id, event_type, module_key, old_status, new_status, actor_id, reason, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now()
	err := tx.QueryRowContext(ctx, query,
		event.OrganizationID,
		event.EventType,
		event.ModuleKey,
		event.OldStatus,
		event.NewStatus,
		event.ActorID,
		event.Reason,
		event.RequestID,
		now,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	event.CreatedAt = now
	return nil
}

// List returns events matching the filter, newest first.
func (l *DBLogger) List(ctx context.Context, filter Filter) ([]Event, error) {
	var conditions []string
	var args []interface{}
	argN := 1

	conditions = append(conditions, fmt.Sprintf("organization_id = $%d", argN))
	args = append(args, filter.OrganizationID)
	argN++

	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("event_type = ANY($%d)", argN))
		args = append(args, pq.Array(types))
		argN++
	}
	if filter.ModuleKey != "" {
		conditions = append(conditions, fmt.Sprintf("module_key = $%d", argN))
		args = append(args, filter.ModuleKey)
		argN++
	}
	if filter.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argN))
		args = append(args, *filter.Since)
		argN++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, organization_id, event_type, module_key, old_status, new_status, actor_id, reason, request_id, created_at
		FROM entitlement_events
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, strings.Join(conditions, " AND "), argN)
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var actorID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.EventType, &e.ModuleKey, &e.OldStatus, &e.NewStatus, &actorID, &e.Reason, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if actorID.Valid {
			id := actorID.Int64
			e.ActorID = &id
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// LogrusLogger writes audit events to the application log. It backs the
// audit trail in tests and development where no database is wired.
type LogrusLogger struct {
	log *logrus.Logger
}

// NewLogrusLogger creates a log-backed audit logger.
func NewLogrusLogger(log *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{log: log}
}

// Record writes the event as a structured log line.
func (l *LogrusLogger) Record(ctx context.Context, event *Event) error {
	l.log.WithFields(logrus.Fields{
		"organization_id": event.OrganizationID,
		"event_type":      event.EventType,
		"module_key":      event.ModuleKey,
		"old_status":      event.OldStatus,
		"new_status":      event.NewStatus,
		"actor_id":        event.ActorID,
		"reason":          event.Reason,
		"request_id":      event.RequestID,
	}).Info("audit event")
	return nil
}

// MultiLogger fans out to multiple loggers; the first error wins but all
// loggers are attempted.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a fan-out audit logger.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Record sends the event to every configured logger.
func (l *MultiLogger) Record(ctx context.Context, event *Event) error {
	var firstErr error
	for _, logger := range l.loggers {
		if err := logger.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetMigrations returns all audit migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create entitlement_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS entitlement_events (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					module_key VARCHAR(100) NOT NULL DEFAULT '',
					old_status VARCHAR(50) NOT NULL DEFAULT '',
					new_status VARCHAR(50) NOT NULL DEFAULT '',
					actor_id BIGINT,
					reason VARCHAR(255) NOT NULL DEFAULT '',
					request_id VARCHAR(64) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_entitlement_events_org ON entitlement_events(organization_id, created_at DESC);
				CREATE INDEX idx_entitlement_events_type ON entitlement_events(event_type);
			`,
		},
	}
}

// RunMigrations executes all pending audit migrations.
func RunMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) error {
	return storage.RunMigrations(ctx, db, "audit_migrations", GetMigrations(), log)
}
