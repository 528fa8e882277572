package engine

import (
	"context"

	"github.com/google/uuid"

	"gigline/internal/audit"
	"gigline/internal/domain"
	"gigline/internal/repo"
)

var applicationStatuses = []string{"submitted", "screening", "interview", "offer", "hired", "rejected"}

func validApplicationStatus(status string) bool {
	for _, s := range applicationStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type ApplicationCreateOptions struct {
	ID            string
	OwnerID       string
	CandidateName string
	RoleTitle     string
	Status        string
	Notes         string
	ActorID       string
}

func (e Engine) CreateApplication(ctx context.Context, opts ApplicationCreateOptions) (domain.JobApplication, error) {
	if opts.OwnerID == "" {
		return domain.JobApplication{}, validationf("owner_id", "required")
	}
	if opts.CandidateName == "" {
		return domain.JobApplication{}, validationf("candidate_name", "required")
	}
	if opts.RoleTitle == "" {
		return domain.JobApplication{}, validationf("role_title", "required")
	}
	if opts.Status == "" {
		opts.Status = "submitted"
	}
	if !validApplicationStatus(opts.Status) {
		return domain.JobApplication{}, validationf("status", "must be one of %v", applicationStatuses)
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowRFC3339()
	a := domain.JobApplication{
		ID:            id,
		OwnerID:       opts.OwnerID,
		CandidateName: opts.CandidateName,
		RoleTitle:     opts.RoleTitle,
		Status:        opts.Status,
		Notes:         opts.Notes,
		AppliedAt:     now,
		UpdatedAt:     now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertApplication(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Audit.Append(ctx, tx, "application.created", a.OwnerID, "application", a.ID, opts.ActorID, audit.Metadata{
		"candidate": a.CandidateName,
		"role":      a.RoleTitle,
	}); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

func (e Engine) GetApplication(ctx context.Context, ownerID, id string) (domain.JobApplication, error) {
	return e.Repo.GetApplication(ctx, ownerID, id)
}

func (e Engine) ListApplications(ctx context.Context, ownerID, status string) ([]domain.JobApplication, error) {
	if status != "" && !validApplicationStatus(status) {
		return nil, validationf("status", "must be one of %v", applicationStatuses)
	}
	return e.Repo.ListApplications(ctx, ownerID, status)
}

type ApplicationUpdateOptions struct {
	OwnerID string
	ID      string
	Status  *string
	Notes   *string
	ActorID string
}

func (e Engine) UpdateApplication(ctx context.Context, opts ApplicationUpdateOptions) (domain.JobApplication, error) {
	if opts.Status != nil && !validApplicationStatus(*opts.Status) {
		return domain.JobApplication{}, validationf("status", "must be one of %v", applicationStatuses)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.JobApplication{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateApplication(ctx, tx, opts.OwnerID, opts.ID, repo.ApplicationUpdate{
		Status: opts.Status,
		Notes:  opts.Notes,
	}, e.nowRFC3339()); err != nil {
		return domain.JobApplication{}, err
	}
	if err := e.Audit.Append(ctx, tx, "application.updated", opts.OwnerID, "application", opts.ID, opts.ActorID, nil); err != nil {
		return domain.JobApplication{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.JobApplication{}, err
	}
	return e.Repo.GetApplication(ctx, opts.OwnerID, opts.ID)
}

func (e Engine) DeleteApplication(ctx context.Context, ownerID, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteApplication(ctx, tx, ownerID, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, "application.deleted", ownerID, "application", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
