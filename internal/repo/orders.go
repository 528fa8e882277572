package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gigline/internal/domain"
)

const orderColumns = `id,owner_id,vendor_name,service_name,status,progress_percent,amount,currency,kickoff_at,due_at,created_at,updated_at`

func scanOrder(scan func(...any) error) (domain.GigOrder, error) {
	var o domain.GigOrder
	var kickoffAt, dueAt sql.NullString
	err := scan(&o.ID, &o.OwnerID, &o.VendorName, &o.ServiceName, &o.Status, &o.ProgressPercent,
		&o.Amount, &o.Currency, &kickoffAt, &dueAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.KickoffAt = optionalString(kickoffAt)
	o.DueAt = optionalString(dueAt)
	return o, nil
}

func (r Repo) InsertOrder(ctx context.Context, tx *sql.Tx, o domain.GigOrder) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO gig_orders(`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.OwnerID, o.VendorName, o.ServiceName, o.Status, o.ProgressPercent,
		o.Amount, o.Currency, nullableStringPtr(o.KickoffAt), nullableStringPtr(o.DueAt), o.CreatedAt, o.UpdatedAt)
	return err
}

// GetOrder loads one order scoped to its owner. An order belonging to a
// different owner reads as not found.
func (r Repo) GetOrder(ctx context.Context, ownerID, id string) (domain.GigOrder, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM gig_orders WHERE id=? AND owner_id=?`, id, ownerID)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) GetOrderTx(ctx context.Context, tx *sql.Tx, ownerID, id string) (domain.GigOrder, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM gig_orders WHERE id=? AND owner_id=?`, id, ownerID)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

type OrderFilters struct {
	OwnerID string
	Status  string
	Limit   int
}

func (r Repo) ListOrders(ctx context.Context, f OrderFilters) ([]domain.GigOrder, error) {
	clauses := []string{"owner_id=?"}
	args := []any{f.OwnerID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + orderColumns + ` FROM gig_orders WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GigOrder
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// UpdateOrder applies the non-nil fields and bumps updated_at.
type OrderUpdate struct {
	Status          *string
	ProgressPercent *int
	VendorName      *string
	ServiceName     *string
	Amount          *float64
	Currency        *string
	KickoffAt       *string
	DueAt           *string
}

func (r Repo) UpdateOrder(ctx context.Context, tx *sql.Tx, ownerID, id string, u OrderUpdate, updatedAt string) error {
	var fields []string
	var args []any
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if u.Status != nil {
		set("status", *u.Status)
	}
	if u.ProgressPercent != nil {
		set("progress_percent", *u.ProgressPercent)
	}
	if u.VendorName != nil {
		set("vendor_name", *u.VendorName)
	}
	if u.ServiceName != nil {
		set("service_name", *u.ServiceName)
	}
	if u.Amount != nil {
		set("amount", *u.Amount)
	}
	if u.Currency != nil {
		set("currency", *u.Currency)
	}
	if u.KickoffAt != nil {
		set("kickoff_at", nullable(*u.KickoffAt))
	}
	if u.DueAt != nil {
		set("due_at", nullable(*u.DueAt))
	}
	if len(fields) == 0 {
		return nil
	}
	set("updated_at", updatedAt)
	args = append(args, id, ownerID)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE gig_orders SET %s WHERE id=? AND owner_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteOrder(ctx context.Context, tx *sql.Tx, ownerID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM gig_orders WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertRequirement(ctx context.Context, tx *sql.Tx, req domain.OrderRequirement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO order_requirements(id,order_id,question,answer,created_at) VALUES (?,?,?,?,?)`,
		req.ID, req.OrderID, req.Question, nullableStringPtr(req.Answer), req.CreatedAt)
	return err
}

func (r Repo) ListRequirements(ctx context.Context, orderID string) ([]domain.OrderRequirement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,order_id,question,answer,created_at FROM order_requirements WHERE order_id=? ORDER BY created_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OrderRequirement
	for rows.Next() {
		var req domain.OrderRequirement
		var answer sql.NullString
		if err := rows.Scan(&req.ID, &req.OrderID, &req.Question, &answer, &req.CreatedAt); err != nil {
			return nil, err
		}
		req.Answer = optionalString(answer)
		res = append(res, req)
	}
	return res, rows.Err()
}

func (r Repo) UpsertScorecard(ctx context.Context, tx *sql.Tx, sc domain.OrderScorecard) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO order_scorecards(order_id,quality,communication,timeliness,comment,created_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(order_id) DO UPDATE SET quality=excluded.quality, communication=excluded.communication, timeliness=excluded.timeliness, comment=excluded.comment`,
		sc.OrderID, sc.Quality, sc.Communication, sc.Timeliness, nullable(sc.Comment), sc.CreatedAt)
	return err
}

func (r Repo) GetScorecard(ctx context.Context, orderID string) (domain.OrderScorecard, error) {
	var sc domain.OrderScorecard
	var comment sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT order_id,quality,communication,timeliness,comment,created_at FROM order_scorecards WHERE order_id=?`, orderID).
		Scan(&sc.OrderID, &sc.Quality, &sc.Communication, &sc.Timeliness, &comment, &sc.CreatedAt)
	if err == sql.ErrNoRows {
		return sc, ErrNotFound
	}
	if comment.Valid {
		sc.Comment = comment.String
	}
	return sc, err
}

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.OrderMessage) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO order_messages(id,order_id,author_id,body,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.OrderID, m.AuthorID, m.Body, m.CreatedAt)
	return err
}

func (r Repo) ListMessages(ctx context.Context, orderID string, limit int) ([]domain.OrderMessage, error) {
	query := `SELECT id,order_id,author_id,body,created_at FROM order_messages WHERE order_id=? ORDER BY created_at DESC, id DESC`
	args := []any{orderID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OrderMessage
	for rows.Next() {
		var m domain.OrderMessage
		if err := rows.Scan(&m.ID, &m.OrderID, &m.AuthorID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertEscrowCheckpoint(ctx context.Context, tx *sql.Tx, c domain.EscrowCheckpoint) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO escrow_checkpoints(id,order_id,label,amount,status,released_at,created_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.OrderID, c.Label, c.Amount, c.Status, nullableStringPtr(c.ReleasedAt), c.CreatedAt)
	return err
}

func (r Repo) GetEscrowCheckpointTx(ctx context.Context, tx *sql.Tx, orderID, id string) (domain.EscrowCheckpoint, error) {
	var c domain.EscrowCheckpoint
	var releasedAt sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,order_id,label,amount,status,released_at,created_at FROM escrow_checkpoints WHERE id=? AND order_id=?`, id, orderID).
		Scan(&c.ID, &c.OrderID, &c.Label, &c.Amount, &c.Status, &releasedAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.ReleasedAt = optionalString(releasedAt)
	return c, err
}

func (r Repo) ReleaseEscrowCheckpoint(ctx context.Context, tx *sql.Tx, id, releasedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE escrow_checkpoints SET status='released', released_at=? WHERE id=? AND status='held'`, releasedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListEscrowCheckpoints(ctx context.Context, orderID string) ([]domain.EscrowCheckpoint, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,order_id,label,amount,status,released_at,created_at FROM escrow_checkpoints WHERE order_id=? ORDER BY created_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EscrowCheckpoint
	for rows.Next() {
		var c domain.EscrowCheckpoint
		var releasedAt sql.NullString
		if err := rows.Scan(&c.ID, &c.OrderID, &c.Label, &c.Amount, &c.Status, &releasedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.ReleasedAt = optionalString(releasedAt)
		res = append(res, c)
	}
	return res, rows.Err()
}

// EscrowHeldByOrder sums held checkpoint amounts per order for one owner.
func (r Repo) EscrowHeldByOrder(ctx context.Context, ownerID string) (map[string]float64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT c.order_id, SUM(c.amount) FROM escrow_checkpoints c
JOIN gig_orders o ON o.id=c.order_id WHERE o.owner_id=? AND c.status='held' GROUP BY c.order_id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]float64{}
	for rows.Next() {
		var orderID string
		var held float64
		if err := rows.Scan(&orderID, &held); err != nil {
			return nil, err
		}
		res[orderID] = held
	}
	return res, rows.Err()
}

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.OrderActivity) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO order_activities(id,order_id,kind,note,actor_id,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.OrderID, a.Kind, nullable(a.Note), a.ActorID, a.CreatedAt)
	return err
}

func (r Repo) ListActivities(ctx context.Context, orderID string, limit int) ([]domain.OrderActivity, error) {
	query := `SELECT id,order_id,kind,COALESCE(note,''),actor_id,created_at FROM order_activities WHERE order_id=? ORDER BY created_at DESC, id DESC`
	args := []any{orderID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OrderActivity
	for rows.Next() {
		var a domain.OrderActivity
		if err := rows.Scan(&a.ID, &a.OrderID, &a.Kind, &a.Note, &a.ActorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
