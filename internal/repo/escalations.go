package repo

import (
	"context"
	"database/sql"
	"strings"

	"gigline/internal/domain"
)

const escalationColumns = `id,owner_id,order_id,status,severity,message,hours_overdue,due_at,detected_at,last_detected_at,escalated_at,resolved_at,resolved_by_id,resolution,support_case_id`

func scanEscalation(scan func(...any) error) (domain.OrderEscalation, error) {
	var e domain.OrderEscalation
	var dueAt, escalatedAt, resolvedAt, resolvedBy, resolution, supportCase sql.NullString
	err := scan(&e.ID, &e.OwnerID, &e.OrderID, &e.Status, &e.Severity, &e.Message, &e.HoursOverdue,
		&dueAt, &e.DetectedAt, &e.LastDetectedAt, &escalatedAt, &resolvedAt, &resolvedBy, &resolution, &supportCase)
	if err != nil {
		return e, err
	}
	e.DueAt = optionalString(dueAt)
	e.EscalatedAt = optionalString(escalatedAt)
	e.ResolvedAt = optionalString(resolvedAt)
	e.ResolvedByID = optionalString(resolvedBy)
	e.Resolution = optionalString(resolution)
	e.SupportCaseID = optionalString(supportCase)
	return e, nil
}

// OpenEscalations returns unresolved escalations for one owner, optionally
// narrowed to a set of order ids.
func (r Repo) OpenEscalations(ctx context.Context, ownerID string, orderIDs []string) ([]domain.OrderEscalation, error) {
	clauses := []string{"owner_id=?", "resolved_at IS NULL"}
	args := []any{ownerID}
	if len(orderIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
		clauses = append(clauses, "order_id IN ("+placeholders+")")
		for _, id := range orderIDs {
			args = append(args, id)
		}
	}
	query := `SELECT ` + escalationColumns + ` FROM order_escalations WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY detected_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OrderEscalation
	for rows.Next() {
		e, err := scanEscalation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

type EscalationFilters struct {
	OwnerID  string
	OrderID  string
	Status   string
	OpenOnly bool
	Limit    int
}

func (r Repo) ListEscalations(ctx context.Context, f EscalationFilters) ([]domain.OrderEscalation, error) {
	clauses := []string{"owner_id=?"}
	args := []any{f.OwnerID}
	if f.OrderID != "" {
		clauses = append(clauses, "order_id=?")
		args = append(args, f.OrderID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.OpenOnly {
		clauses = append(clauses, "resolved_at IS NULL")
	}
	query := `SELECT ` + escalationColumns + ` FROM order_escalations WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY detected_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OrderEscalation
	for rows.Next() {
		e, err := scanEscalation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// GetOpenEscalationTx loads the single open escalation for (owner, order),
// if any. The partial unique index guarantees at most one exists.
func (r Repo) GetOpenEscalationTx(ctx context.Context, tx *sql.Tx, ownerID, orderID string) (domain.OrderEscalation, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+escalationColumns+` FROM order_escalations WHERE owner_id=? AND order_id=? AND resolved_at IS NULL`, ownerID, orderID)
	e, err := scanEscalation(row.Scan)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) InsertEscalation(ctx context.Context, tx *sql.Tx, e domain.OrderEscalation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO order_escalations(`+escalationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.OwnerID, e.OrderID, e.Status, e.Severity, e.Message, e.HoursOverdue,
		nullableStringPtr(e.DueAt), e.DetectedAt, e.LastDetectedAt, nullableStringPtr(e.EscalatedAt),
		nullableStringPtr(e.ResolvedAt), nullableStringPtr(e.ResolvedByID), nullableStringPtr(e.Resolution), nullableStringPtr(e.SupportCaseID))
	return err
}

// RefreshEscalation updates the detection fields of an existing open row.
func (r Repo) RefreshEscalation(ctx context.Context, tx *sql.Tx, id, severity, message string, hoursOverdue int, lastDetectedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE order_escalations SET severity=?, message=?, hours_overdue=?, last_detected_at=? WHERE id=? AND resolved_at IS NULL`,
		severity, message, hoursOverdue, lastDetectedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveEscalations closes every open escalation for the order and returns
// how many rows were closed.
func (r Repo) ResolveEscalations(ctx context.Context, tx *sql.Tx, ownerID, orderID, resolvedByID, resolution, resolvedAt string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE order_escalations SET status='resolved', resolved_at=?, resolved_by_id=?, resolution=? WHERE owner_id=? AND order_id=? AND resolved_at IS NULL`,
		resolvedAt, nullable(resolvedByID), nullable(resolution), ownerID, orderID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
