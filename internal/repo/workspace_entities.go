package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gigline/internal/domain"
)

// EntityTable describes one workspace child table for the generic record
// operations. Table and Columns come from the static entity registry, never
// from request input.
type EntityTable struct {
	Table   string
	Columns []string
}

func (t EntityTable) selectColumns() string {
	return "id,workspace_id," + strings.Join(t.Columns, ",") + ",created_at,updated_at"
}

func scanRecord(t EntityTable, scan func(...any) error) (domain.WorkspaceRecord, error) {
	rec := domain.WorkspaceRecord{Fields: map[string]any{}}
	values := make([]any, len(t.Columns))
	dest := []any{&rec.ID, &rec.WorkspaceID}
	for i := range values {
		dest = append(dest, &values[i])
	}
	dest = append(dest, &rec.CreatedAt, &rec.UpdatedAt)
	if err := scan(dest...); err != nil {
		return rec, err
	}
	for i, col := range t.Columns {
		if values[i] != nil {
			rec.Fields[col] = values[i]
		}
	}
	return rec, nil
}

func (r Repo) InsertWorkspaceRecord(ctx context.Context, tx *sql.Tx, t EntityTable, rec domain.WorkspaceRecord) error {
	cols := []string{"id", "workspace_id"}
	placeholders := []string{"?", "?"}
	args := []any{rec.ID, rec.WorkspaceID}
	for _, col := range t.Columns {
		cols = append(cols, col)
		placeholders = append(placeholders, "?")
		v, ok := rec.Fields[col]
		if !ok {
			args = append(args, nil)
			continue
		}
		args = append(args, v)
	}
	cols = append(cols, "created_at", "updated_at")
	placeholders = append(placeholders, "?", "?")
	args = append(args, rec.CreatedAt, rec.UpdatedAt)
	query := fmt.Sprintf(`INSERT INTO %s(%s) VALUES (%s)`, t.Table, strings.Join(cols, ","), strings.Join(placeholders, ","))
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetWorkspaceRecordTx loads a record scoped to its workspace inside the
// mutation transaction, gating updates and deletes on existence.
func (r Repo) GetWorkspaceRecordTx(ctx context.Context, tx *sql.Tx, t EntityTable, workspaceID, id string) (domain.WorkspaceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id=? AND workspace_id=?`, t.selectColumns(), t.Table)
	rec, err := scanRecord(t, tx.QueryRowContext(ctx, query, id, workspaceID).Scan)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	return rec, err
}

func (r Repo) UpdateWorkspaceRecord(ctx context.Context, tx *sql.Tx, t EntityTable, workspaceID, id string, fields map[string]any, updatedAt string) error {
	var sets []string
	var args []any
	for _, col := range t.Columns {
		v, ok := fields[col]
		if !ok {
			continue
		}
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at=?")
	args = append(args, updatedAt, id, workspaceID)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id=? AND workspace_id=?`, t.Table, strings.Join(sets, ","))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteWorkspaceRecord(ctx context.Context, tx *sql.Tx, t EntityTable, workspaceID, id string) error {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=? AND workspace_id=?`, t.Table), id, workspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListWorkspaceRecords(ctx context.Context, t EntityTable, workspaceID string) ([]domain.WorkspaceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE workspace_id=? ORDER BY created_at ASC, id ASC`, t.selectColumns(), t.Table)
	rows, err := r.DB.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkspaceRecord
	for rows.Next() {
		rec, err := scanRecord(t, rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
