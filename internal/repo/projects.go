package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gigline/internal/domain"
)

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,owner_id,name,description,status,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.OwnerID, p.Name, nullable(p.Description), p.Status, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,name,description,status,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.OwnerID, &p.Name, &desc, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error) {
	clauses := []string{"1=1"}
	var args []any
	if ownerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, ownerID)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,owner_id,name,COALESCE(description,''),status,created_at FROM projects WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, status string, description *string) error {
	var fields []string
	var args []any
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWorkspace(scan func(...any) error) (domain.ProjectWorkspace, error) {
	var w domain.ProjectWorkspace
	var notes sql.NullString
	err := scan(&w.ID, &w.ProjectID, &w.Status, &w.ProgressPercent, &w.RiskLevel, &notes, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return w, err
	}
	if notes.Valid {
		w.Notes = notes.String
	}
	return w, nil
}

const workspaceColumns = `id,project_id,status,progress_percent,risk_level,notes,created_at,updated_at`

func (r Repo) GetWorkspaceByProject(ctx context.Context, projectID string) (domain.ProjectWorkspace, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM project_workspaces WHERE project_id=?`, projectID)
	w, err := scanWorkspace(row.Scan)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

func (r Repo) GetWorkspaceByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) (domain.ProjectWorkspace, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM project_workspaces WHERE project_id=?`, projectID)
	w, err := scanWorkspace(row.Scan)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

func (r Repo) InsertWorkspace(ctx context.Context, tx *sql.Tx, w domain.ProjectWorkspace) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_workspaces(`+workspaceColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		w.ID, w.ProjectID, w.Status, w.ProgressPercent, w.RiskLevel, nullable(w.Notes), w.CreatedAt, w.UpdatedAt)
	return err
}

type WorkspaceUpdate struct {
	Status          *string
	ProgressPercent *int
	RiskLevel       *string
	Notes           *string
}

func (r Repo) UpdateWorkspace(ctx context.Context, tx *sql.Tx, id string, u WorkspaceUpdate, updatedAt string) error {
	var fields []string
	var args []any
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *u.Status)
	}
	if u.ProgressPercent != nil {
		fields = append(fields, "progress_percent=?")
		args = append(args, *u.ProgressPercent)
	}
	if u.RiskLevel != nil {
		fields = append(fields, "risk_level=?")
		args = append(args, *u.RiskLevel)
	}
	if u.Notes != nil {
		fields = append(fields, "notes=?")
		args = append(args, nullable(*u.Notes))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE project_workspaces SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertIntegration(ctx context.Context, tx *sql.Tx, in domain.ProjectIntegration) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_integrations(id,project_id,provider,status,config_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		in.ID, in.ProjectID, in.Provider, in.Status, nullable(in.ConfigJSON), in.CreatedAt, in.UpdatedAt)
	return err
}

func (r Repo) UpdateIntegration(ctx context.Context, tx *sql.Tx, projectID, provider, status, configJSON, updatedAt string) error {
	var fields []string
	var args []any
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	if configJSON != "" {
		fields = append(fields, "config_json=?")
		args = append(args, configJSON)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, projectID, provider)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE project_integrations SET %s WHERE project_id=? AND provider=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListIntegrations(ctx context.Context, projectID string) ([]domain.ProjectIntegration, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,provider,status,COALESCE(config_json,''),created_at,updated_at FROM project_integrations WHERE project_id=? ORDER BY provider ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectIntegration
	for rows.Next() {
		var in domain.ProjectIntegration
		if err := rows.Scan(&in.ID, &in.ProjectID, &in.Provider, &in.Status, &in.ConfigJSON, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}
