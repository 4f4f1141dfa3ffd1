package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
)

// AuditRepository persists the append-only audit trail.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Insert appends one audit row and returns its id.
func (r *AuditRepository) Insert(ctx context.Context, event domain.AuditEvent) (int64, error) {
	var other []byte
	if event.Other != nil {
		encoded, err := json.Marshal(event.Other)
		if err != nil {
			return 0, fmt.Errorf("marshal audit other data: %w", err)
		}
		other = encoded
	}

	stmt, args, err := r.builder.Insert("rbac.audit_log").
		Columns(
			"eventname", "component", "action", "target",
			"objecttable", "objectid", "crud",
			"contextid", "contextlevel", "contextinstanceid",
			"userid", "relateduserid", "other",
			"timecreated", "origin", "ip",
		).
		Values(
			event.Name, event.Component, event.Action, event.Target,
			event.ObjectTable, event.ObjectID, event.CRUD,
			event.ContextID, int(event.ContextLevel), event.InstanceID,
			event.UserID, event.RelatedUserID, other,
			event.TimeCreated, event.Origin, event.IPAddress,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert audit sql: %w", err)
	}

	var id int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}

	return id, nil
}

// List returns audit rows matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	query := r.builder.Select(
		"id", "eventname", "component", "action", "target",
		"objecttable", "objectid", "crud",
		"contextid", "contextlevel", "contextinstanceid",
		"userid", "relateduserid", "other",
		"timecreated", "origin", "ip",
	).
		From("rbac.audit_log").
		OrderBy("id DESC")

	if filter.UserID != nil {
		query = query.Where(squirrel.Eq{"userid": *filter.UserID})
	}
	if filter.RelatedUserID != nil {
		query = query.Where(squirrel.Eq{"relateduserid": *filter.RelatedUserID})
	}
	if filter.ContextID != nil {
		query = query.Where(squirrel.Eq{"contextid": *filter.ContextID})
	}
	if filter.Name != "" {
		query = query.Where(squirrel.Eq{"eventname": filter.Name})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.AuditEvent, 0)
	for rows.Next() {
		var (
			event domain.AuditEvent
			level int
			other []byte
			ip    sql.NullString
		)
		if err := rows.Scan(
			&event.ID, &event.Name, &event.Component, &event.Action, &event.Target,
			&event.ObjectTable, &event.ObjectID, &event.CRUD,
			&event.ContextID, &level, &event.InstanceID,
			&event.UserID, &event.RelatedUserID, &other,
			&event.TimeCreated, &event.Origin, &ip,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ContextLevel = domain.ContextLevel(level)
		if ip.Valid {
			event.IPAddress = &ip.String
		}
		if len(other) > 0 {
			if err := json.Unmarshal(other, &event.Other); err != nil {
				return nil, fmt.Errorf("unmarshal audit other data: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
