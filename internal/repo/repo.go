package repo

import (
	"context"
	"database/sql"
	"errors"

	"gigline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func optionalString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// ListAuditEntries returns the bounded audit log for one entity, newest first.
func (r Repo) ListAuditEntries(ctx context.Context, entityKind, entityID string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,COALESCE(owner_id,''),entity_kind,entity_id,action,actor_id,occurred_at,COALESCE(metadata_json,'') FROM audit_entries
WHERE entity_kind=? AND entity_id=? ORDER BY occurred_at DESC, id DESC LIMIT ?`, entityKind, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.EntityKind, &e.EntityID, &e.Action, &e.ActorID, &e.OccurredAt, &e.MetadataJSON); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
