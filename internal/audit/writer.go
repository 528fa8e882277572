package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Writer appends typed audit entries inside the caller's transaction.
// Each (entity_kind, entity_id) log is capped at MaxPerEntity entries;
// the oldest rows are pruned on insert.
type Writer struct {
	DB           *sql.DB
	MaxPerEntity int
	Now          func() time.Time
}

const defaultMaxPerEntity = 50

type Metadata map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, action, ownerID, entityKind, entityID, actorID string, metadata Metadata) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	limit := w.MaxPerEntity
	if limit <= 0 {
		limit = defaultMaxPerEntity
	}
	occurredAt := w.Now().UTC().Format(time.RFC3339)
	if metadata == nil {
		metadata = Metadata{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_entries(id,owner_id,entity_kind,entity_id,action,actor_id,occurred_at,metadata_json) VALUES (?,?,?,?,?,?,?,?)`,
		uuid.New().String(), nullable(ownerID), entityKind, entityID, action, actorID, occurredAt, string(data))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM audit_entries WHERE entity_kind=? AND entity_id=? AND id NOT IN (
		SELECT id FROM audit_entries WHERE entity_kind=? AND entity_id=? ORDER BY occurred_at DESC, id DESC LIMIT ?
	)`, entityKind, entityID, entityKind, entityID, limit)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
