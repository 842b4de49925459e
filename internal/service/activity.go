package service

import (
	"context"

	"stockroom/backend/internal/domain"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

func clampActivityLimit(limit int) int {
	if limit <= 0 {
		return defaultActivityLimit
	}
	if limit > maxActivityLimit {
		return maxActivityLimit
	}
	return limit
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, clampActivityLimit(limit))
}

// ListNotifications returns the caller's notifications: those addressed to
// their role, to them personally, or to everyone.
func (s *Service) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	return s.repo.ListNotifications(ctx, actorOrSystem(ctx), clampActivityLimit(limit))
}
