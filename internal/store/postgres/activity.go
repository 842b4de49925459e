package postgres

import (
	"context"
	"encoding/json"
	"time"

	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/xid"
)

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, module, description, actor_id, actor_username, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.Action, entry.Module, entry.Description, entry.ActorID, entry.ActorUsername, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, module, description, actor_id, actor_username, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Module, &entry.Description, &entry.ActorID, &entry.ActorUsername, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = xid.New("ntf")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	audience, err := json.Marshal(n.Audience)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, message, severity, audience, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, n.ID, n.Message, n.Severity, string(audience), n.CreatedAt)
	return err
}

// ListNotifications applies the same addressing as domain.Audience.Includes.
func (s *Store) ListNotifications(ctx context.Context, actor domain.Actor, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message, severity, audience, created_at
		FROM notifications
		WHERE COALESCE((audience->>'global')::boolean, false)
			OR ($1 <> '' AND audience->>'userId' = $1)
			OR COALESCE(audience->'roles', '[]'::jsonb) @> jsonb_build_array($2::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, actor.ID, actor.Role, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0, limit)
	for rows.Next() {
		var n domain.Notification
		var audience []byte
		if err := rows.Scan(&n.ID, &n.Message, &n.Severity, &audience, &n.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(audience, &n.Audience); err != nil {
			return nil, err
		}
		n.CreatedAt = n.CreatedAt.UTC()
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}
