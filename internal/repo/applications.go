package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gigline/internal/domain"
)

func (r Repo) InsertApplication(ctx context.Context, tx *sql.Tx, a domain.JobApplication) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO job_applications(id,owner_id,candidate_name,role_title,status,notes,applied_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.OwnerID, a.CandidateName, a.RoleTitle, a.Status, nullable(a.Notes), a.AppliedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetApplication(ctx context.Context, ownerID, id string) (domain.JobApplication, error) {
	var a domain.JobApplication
	var notes sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,candidate_name,role_title,status,notes,applied_at,updated_at FROM job_applications WHERE id=? AND owner_id=?`, id, ownerID).
		Scan(&a.ID, &a.OwnerID, &a.CandidateName, &a.RoleTitle, &a.Status, &notes, &a.AppliedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if notes.Valid {
		a.Notes = notes.String
	}
	return a, err
}

func (r Repo) ListApplications(ctx context.Context, ownerID, status string) ([]domain.JobApplication, error) {
	clauses := []string{"owner_id=?"}
	args := []any{ownerID}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,owner_id,candidate_name,role_title,status,COALESCE(notes,''),applied_at,updated_at FROM job_applications WHERE `+strings.Join(clauses, " AND ")+` ORDER BY applied_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.JobApplication
	for rows.Next() {
		var a domain.JobApplication
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.CandidateName, &a.RoleTitle, &a.Status, &a.Notes, &a.AppliedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

type ApplicationUpdate struct {
	Status    *string
	RoleTitle *string
	Notes     *string
}

func (r Repo) UpdateApplication(ctx context.Context, tx *sql.Tx, ownerID, id string, u ApplicationUpdate, updatedAt string) error {
	var fields []string
	var args []any
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *u.Status)
	}
	if u.RoleTitle != nil {
		fields = append(fields, "role_title=?")
		args = append(args, *u.RoleTitle)
	}
	if u.Notes != nil {
		fields = append(fields, "notes=?")
		args = append(args, nullable(*u.Notes))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id, ownerID)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE job_applications SET %s WHERE id=? AND owner_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteApplication(ctx context.Context, tx *sql.Tx, ownerID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM job_applications WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
