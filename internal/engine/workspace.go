package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"gigline/internal/audit"
	"gigline/internal/domain"
	"gigline/internal/repo"
)

type ProjectCreateOptions struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	Status      string
	ActorID     string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.OwnerID == "" {
		return domain.Project{}, validationf("owner_id", "required")
	}
	if opts.Name == "" {
		return domain.Project{}, validationf("name", "required")
	}
	if opts.Status == "" {
		opts.Status = "draft"
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.Project{
		ID:          id,
		OwnerID:     opts.OwnerID,
		Name:        opts.Name,
		Description: opts.Description,
		Status:      opts.Status,
		CreatedAt:   e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Audit.Append(ctx, tx, "project.created", p.OwnerID, "project", p.ID, opts.ActorID, audit.Metadata{"name": p.Name}); err != nil {
		return p, err
	}
	return p, tx.Commit()
}

// getOwnedProject gates project access by owner. A project that exists but
// belongs to someone else reads as not found.
func (e Engine) getOwnedProject(ctx context.Context, ownerID, projectID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return p, err
	}
	if ownerID != "" && p.OwnerID != ownerID {
		return domain.Project{}, repo.ErrNotFound
	}
	return p, nil
}

func (e Engine) ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx, ownerID)
}

// ensureWorkspaceTx returns the project's workspace, creating it inside the
// caller's transaction on first access. Creation seeds the default
// integrations exactly once.
func (e Engine) ensureWorkspaceTx(ctx context.Context, tx *sql.Tx, projectID string) (domain.ProjectWorkspace, error) {
	w, err := e.Repo.GetWorkspaceByProjectTx(ctx, tx, projectID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return w, err
	}
	now := e.nowRFC3339()
	w = domain.ProjectWorkspace{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Status:    "forming",
		RiskLevel: "low",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertWorkspace(ctx, tx, w); err != nil {
		// lost a concurrent first-access race; the winner's row is live
		if existing, rerr := e.Repo.GetWorkspaceByProject(ctx, projectID); rerr == nil {
			return existing, nil
		}
		return w, err
	}
	providers := e.Config.Workspace.DefaultIntegrations
	if len(providers) == 0 {
		providers = domain.DefaultIntegrationProviders
	}
	for _, provider := range providers {
		if err := e.Repo.InsertIntegration(ctx, tx, domain.ProjectIntegration{
			ID:        uuid.New().String(),
			ProjectID: projectID,
			Provider:  provider,
			Status:    "disconnected",
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return w, err
		}
	}
	return w, nil
}

// EnsureWorkspace is the standalone lazy-create entry point used by reads.
func (e Engine) EnsureWorkspace(ctx context.Context, ownerID, projectID string) (domain.ProjectWorkspace, error) {
	if _, err := e.getOwnedProject(ctx, ownerID, projectID); err != nil {
		return domain.ProjectWorkspace{}, err
	}
	if w, err := e.Repo.GetWorkspaceByProject(ctx, projectID); err == nil {
		return w, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return w, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectWorkspace{}, err
	}
	defer tx.Rollback()
	w, err := e.ensureWorkspaceTx(ctx, tx, projectID)
	if err != nil {
		return w, err
	}
	return w, tx.Commit()
}

type WorkspaceMutateOptions struct {
	OwnerID   string
	ProjectID string
	Entity    string
	Payload   map[string]any
	RecordID  string
	IsUpdate  bool
	IsDelete  bool
	ActorID   string
}

// MutateWorkspaceEntity is the generic create/update/delete path for
// workspace child records. Unsupported entity kinds and invalid payloads are
// rejected before any query runs; everything else happens in one transaction.
func (e Engine) MutateWorkspaceEntity(ctx context.Context, opts WorkspaceMutateOptions) (domain.WorkspaceRecord, error) {
	kind, ok := NormalizeEntityKind(opts.Entity)
	if !ok {
		return domain.WorkspaceRecord{}, validationf("entity", "unsupported entity kind %q", opts.Entity)
	}
	spec := entityRegistry[kind]
	var fields map[string]any
	if !opts.IsDelete {
		var err error
		fields, err = spec.prepare(opts.Payload, opts.IsUpdate)
		if err != nil {
			return domain.WorkspaceRecord{}, err
		}
	}
	if (opts.IsUpdate || opts.IsDelete) && opts.RecordID == "" {
		return domain.WorkspaceRecord{}, validationf("record_id", "required")
	}
	if _, err := e.getOwnedProject(ctx, opts.OwnerID, opts.ProjectID); err != nil {
		return domain.WorkspaceRecord{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkspaceRecord{}, err
	}
	defer tx.Rollback()
	ws, err := e.ensureWorkspaceTx(ctx, tx, opts.ProjectID)
	if err != nil {
		return domain.WorkspaceRecord{}, err
	}

	now := e.nowRFC3339()
	var rec domain.WorkspaceRecord
	var action string
	switch {
	case opts.IsDelete:
		rec, err = e.Repo.GetWorkspaceRecordTx(ctx, tx, spec.Table, ws.ID, opts.RecordID)
		if err != nil {
			return rec, err
		}
		if err := e.Repo.DeleteWorkspaceRecord(ctx, tx, spec.Table, ws.ID, opts.RecordID); err != nil {
			return rec, err
		}
		action = "deleted"
	case opts.IsUpdate:
		if _, err := e.Repo.GetWorkspaceRecordTx(ctx, tx, spec.Table, ws.ID, opts.RecordID); err != nil {
			return rec, err
		}
		if err := e.Repo.UpdateWorkspaceRecord(ctx, tx, spec.Table, ws.ID, opts.RecordID, fields, now); err != nil {
			return rec, err
		}
		rec, err = e.Repo.GetWorkspaceRecordTx(ctx, tx, spec.Table, ws.ID, opts.RecordID)
		if err != nil {
			return rec, err
		}
		action = "updated"
	default:
		rec = domain.WorkspaceRecord{
			ID:          uuid.New().String(),
			WorkspaceID: ws.ID,
			Fields:      fields,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Repo.InsertWorkspaceRecord(ctx, tx, spec.Table, rec); err != nil {
			return rec, err
		}
		action = "created"
	}
	if err := e.Audit.Append(ctx, tx, "workspace."+kind+"."+action, opts.OwnerID, kind, rec.ID, opts.ActorID, audit.Metadata{
		"project_id": opts.ProjectID,
	}); err != nil {
		return rec, err
	}
	return rec, tx.Commit()
}

// ListWorkspaceEntities returns every record of one kind, lazily creating
// the workspace on first access.
func (e Engine) ListWorkspaceEntities(ctx context.Context, ownerID, projectID, entity string) ([]domain.WorkspaceRecord, error) {
	kind, ok := NormalizeEntityKind(entity)
	if !ok {
		return nil, validationf("entity", "unsupported entity kind %q", entity)
	}
	ws, err := e.EnsureWorkspace(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListWorkspaceRecords(ctx, entityRegistry[kind].Table, ws.ID)
}

// ListProjectIntegrations and UpdateProjectIntegration serve the dedicated
// "integrations" handler; integrations hang off the project row, not the
// generic workspace child tables.
func (e Engine) ListProjectIntegrations(ctx context.Context, ownerID, projectID string) ([]domain.ProjectIntegration, error) {
	if _, err := e.EnsureWorkspace(ctx, ownerID, projectID); err != nil {
		return nil, err
	}
	return e.Repo.ListIntegrations(ctx, projectID)
}

func (e Engine) UpdateProjectIntegration(ctx context.Context, ownerID, projectID, provider, status, configJSON, actorID string) (domain.ProjectIntegration, error) {
	switch status {
	case "", "connected", "disconnected", "error":
	default:
		return domain.ProjectIntegration{}, validationf("status", "must be connected, disconnected, or error")
	}
	if _, err := e.EnsureWorkspace(ctx, ownerID, projectID); err != nil {
		return domain.ProjectIntegration{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectIntegration{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateIntegration(ctx, tx, projectID, provider, status, configJSON, e.nowRFC3339()); err != nil {
		return domain.ProjectIntegration{}, err
	}
	if err := e.Audit.Append(ctx, tx, "integration.updated", ownerID, "project", projectID, actorID, audit.Metadata{
		"provider": provider,
		"status":   status,
	}); err != nil {
		return domain.ProjectIntegration{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectIntegration{}, err
	}
	integrations, err := e.Repo.ListIntegrations(ctx, projectID)
	if err != nil {
		return domain.ProjectIntegration{}, err
	}
	for _, in := range integrations {
		if in.Provider == provider {
			return in, nil
		}
	}
	return domain.ProjectIntegration{}, repo.ErrNotFound
}

type ProjectUpdateOptions struct {
	OwnerID     string
	ProjectID   string
	Status      *string
	Description *string
	ActorID     string
}

var projectStatuses = []string{"draft", "active", "paused", "completed", "archived"}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	if opts.Status != nil && !stringIn(*opts.Status, projectStatuses) {
		return domain.Project{}, validationf("status", "must be one of %v", projectStatuses)
	}
	if _, err := e.getOwnedProject(ctx, opts.OwnerID, opts.ProjectID); err != nil {
		return domain.Project{}, err
	}
	status := ""
	if opts.Status != nil {
		status = *opts.Status
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProject(ctx, tx, opts.ProjectID, status, opts.Description); err != nil {
		return domain.Project{}, err
	}
	if err := e.Audit.Append(ctx, tx, "project.updated", opts.OwnerID, "project", opts.ProjectID, opts.ActorID, audit.Metadata{
		"status": status,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, opts.ProjectID)
}

type WorkspaceSummaryUpdateOptions struct {
	OwnerID         string
	ProjectID       string
	Status          *string
	ProgressPercent *int
	RiskLevel       *string
	Notes           *string
	ActorID         string
}

var workspaceStatuses = []string{"forming", "active", "at_risk", "closing", "closed"}
var workspaceRiskLevels = []string{"low", "medium", "high"}

// UpdateWorkspaceSummary mutates the workspace header row itself (status,
// progress, risk, notes); the dedicated summary path writes here rather than
// into any registry child table.
func (e Engine) UpdateWorkspaceSummary(ctx context.Context, opts WorkspaceSummaryUpdateOptions) (domain.ProjectWorkspace, error) {
	if opts.Status != nil && !stringIn(*opts.Status, workspaceStatuses) {
		return domain.ProjectWorkspace{}, validationf("status", "must be one of %v", workspaceStatuses)
	}
	if opts.RiskLevel != nil && !stringIn(*opts.RiskLevel, workspaceRiskLevels) {
		return domain.ProjectWorkspace{}, validationf("risk_level", "must be one of %v", workspaceRiskLevels)
	}
	if opts.ProgressPercent != nil && (*opts.ProgressPercent < 0 || *opts.ProgressPercent > 100) {
		return domain.ProjectWorkspace{}, validationf("progress_percent", "must be between 0 and 100")
	}
	if _, err := e.getOwnedProject(ctx, opts.OwnerID, opts.ProjectID); err != nil {
		return domain.ProjectWorkspace{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectWorkspace{}, err
	}
	defer tx.Rollback()
	ws, err := e.ensureWorkspaceTx(ctx, tx, opts.ProjectID)
	if err != nil {
		return domain.ProjectWorkspace{}, err
	}
	if err := e.Repo.UpdateWorkspace(ctx, tx, ws.ID, repo.WorkspaceUpdate{
		Status:          opts.Status,
		ProgressPercent: opts.ProgressPercent,
		RiskLevel:       opts.RiskLevel,
		Notes:           opts.Notes,
	}, e.nowRFC3339()); err != nil {
		return domain.ProjectWorkspace{}, err
	}
	if err := e.Audit.Append(ctx, tx, "workspace.summary.updated", opts.OwnerID, "project", opts.ProjectID, opts.ActorID, audit.Metadata{
		"workspace_id": ws.ID,
	}); err != nil {
		return domain.ProjectWorkspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectWorkspace{}, err
	}
	return e.Repo.GetWorkspaceByProject(ctx, opts.ProjectID)
}

func stringIn(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

type WorkspaceSummary struct {
	BudgetTotal      float64 `json:"budget_total"`
	BudgetSpent      float64 `json:"budget_spent"`
	TaskCount        int     `json:"task_count"`
	TasksDone        int     `json:"tasks_done"`
	HoursLogged      float64 `json:"hours_logged"`
	ObjectivesAtRisk int     `json:"objectives_at_risk"`
	InvitesAccepted  int     `json:"invites_accepted"`
	NextMeetingAt    *string `json:"next_meeting_at,omitempty" format:"date-time"`
}

// WorkspaceTimeline is the bounding box over task start/due dates and
// calendar event start/end times.
type WorkspaceTimeline struct {
	EarliestAt *string `json:"earliest_at,omitempty"`
	LatestAt   *string `json:"latest_at,omitempty"`
}

type WorkspaceView struct {
	Workspace    domain.ProjectWorkspace             `json:"workspace"`
	Entities     map[string][]domain.WorkspaceRecord `json:"entities"`
	Integrations []domain.ProjectIntegration         `json:"integrations"`
	Summary      WorkspaceSummary                    `json:"summary"`
	Timeline     WorkspaceTimeline                   `json:"timeline"`
}

// GetWorkspaceSnapshot assembles the full management view: every child
// table, integrations, a derived summary, and the timeline bounding box.
// Read-only apart from the lazy workspace create.
func (e Engine) GetWorkspaceSnapshot(ctx context.Context, ownerID, projectID string) (WorkspaceView, error) {
	ws, err := e.EnsureWorkspace(ctx, ownerID, projectID)
	if err != nil {
		return WorkspaceView{}, err
	}
	view := WorkspaceView{
		Workspace: ws,
		Entities:  make(map[string][]domain.WorkspaceRecord, len(entityRegistry)),
	}
	for kind, spec := range entityRegistry {
		records, err := e.Repo.ListWorkspaceRecords(ctx, spec.Table, ws.ID)
		if err != nil {
			return view, err
		}
		view.Entities[kind] = records
	}
	if view.Integrations, err = e.Repo.ListIntegrations(ctx, projectID); err != nil {
		return view, err
	}
	view.Summary = e.deriveSummary(view.Entities)
	view.Timeline = deriveTimeline(view.Entities)
	return view, nil
}

func (e Engine) deriveSummary(entities map[string][]domain.WorkspaceRecord) WorkspaceSummary {
	var s WorkspaceSummary
	for _, rec := range entities["budget-lines"] {
		amount := numField(rec, "amount")
		s.BudgetTotal += amount
		if strField(rec, "status") == "spent" {
			s.BudgetSpent += amount
		}
	}
	for _, rec := range entities["tasks"] {
		s.TaskCount++
		if strField(rec, "status") == "done" {
			s.TasksDone++
		}
	}
	for _, rec := range entities["time-entries"] {
		s.HoursLogged += numField(rec, "hours")
	}
	for _, rec := range entities["objectives"] {
		switch strField(rec, "status") {
		case "at_risk", "off_track":
			s.ObjectivesAtRisk++
		}
	}
	for _, rec := range entities["invites"] {
		if strField(rec, "status") == "accepted" {
			s.InvitesAccepted++
		}
	}
	now := e.now()
	for _, rec := range entities["meetings"] {
		at := strField(rec, "scheduled_at")
		t, ok := parseTime(at)
		if !ok || t.Before(now) {
			continue
		}
		if s.NextMeetingAt == nil {
			next := at
			s.NextMeetingAt = &next
			continue
		}
		if current, ok := parseTime(*s.NextMeetingAt); ok && t.Before(current) {
			next := at
			s.NextMeetingAt = &next
		}
	}
	return s
}

func deriveTimeline(entities map[string][]domain.WorkspaceRecord) WorkspaceTimeline {
	var earliest, latest *time.Time
	consider := func(value string) {
		t, ok := parseTime(value)
		if !ok {
			return
		}
		if earliest == nil || t.Before(*earliest) {
			at := t
			earliest = &at
		}
		if latest == nil || t.After(*latest) {
			at := t
			latest = &at
		}
	}
	for _, rec := range entities["tasks"] {
		consider(strField(rec, "start_date"))
		consider(strField(rec, "due_date"))
	}
	for _, rec := range entities["calendar-events"] {
		consider(strField(rec, "starts_at"))
		consider(strField(rec, "ends_at"))
	}
	var tl WorkspaceTimeline
	if earliest != nil {
		at := earliest.UTC().Format(time.RFC3339)
		tl.EarliestAt = &at
	}
	if latest != nil {
		at := latest.UTC().Format(time.RFC3339)
		tl.LatestAt = &at
	}
	return tl
}

// numField coerces a scanned column value, which sqlite may hand back as
// int64, float64, or text.
func numField(rec domain.WorkspaceRecord, name string) float64 {
	raw, ok := rec.Fields[name]
	if !ok {
		return 0
	}
	n, err := coerceNumber(raw)
	if err != nil {
		return 0
	}
	return n
}

func strField(rec domain.WorkspaceRecord, name string) string {
	raw, ok := rec.Fields[name]
	if !ok {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
