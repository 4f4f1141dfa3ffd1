package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
)

// Component recorded on every audit row written by this service.
const AuditComponent = "core_rbac"

// Actor identifies who performed a mutating operation, for the audit trail.
type Actor struct {
	ID int64
	IP string
}

// AuditService records the append-only audit trail. Writes are best-effort
// from the mutation paths: a failed audit insert is logged and counted but
// never rolls back the RBAC mutation that triggered it.
type AuditService struct {
	audit        port.AuditRepository
	log          *zap.Logger
	defaultLimit int
	maxLimit     int
}

// NewAuditService constructs an AuditService.
func NewAuditService(audit port.AuditRepository, log *zap.Logger) *AuditService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditService{audit: audit, log: log, defaultLimit: 100, maxLimit: 500}
}

// WithLimits overrides the default and maximum page sizes for List.
func (s *AuditService) WithLimits(defaultLimit, maxLimit int) *AuditService {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		s.maxLimit = maxLimit
	}
	return s
}

// Record validates and persists one audit event, returning its id.
func (s *AuditService) Record(ctx context.Context, event domain.AuditEvent) (int64, error) {
	if strings.TrimSpace(event.Name) == "" || strings.TrimSpace(event.Component) == "" {
		return 0, ErrInvalidEvent
	}

	if event.TimeCreated.IsZero() {
		event.TimeCreated = time.Now().UTC()
	}
	if event.Origin == "" {
		event.Origin = "api"
	}

	id, err := s.audit.Insert(ctx, event)
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}

	return id, nil
}

// TryRecord persists an audit event best-effort, logging any failure.
func (s *AuditService) TryRecord(ctx context.Context, event domain.AuditEvent) {
	if _, err := s.Record(ctx, event); err != nil {
		s.log.Warn("audit write failed",
			zap.String("event", event.Name),
			zap.Int64("actor_id", event.UserID),
			zap.Error(err),
		)
	}
}

// List returns audit trail rows matching the filter, newest first.
func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	if filter.Limit <= 0 || filter.Limit > s.maxLimit {
		filter.Limit = s.defaultLimit
	}

	events, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}

	return events, nil
}
