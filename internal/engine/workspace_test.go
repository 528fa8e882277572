package engine_test

import (
	"errors"
	"sync"
	"testing"

	"gigline/internal/engine"
	"gigline/internal/repo"
)

func mustCreateProject(t *testing.T, env testEnv, owner string) string {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		OwnerID: owner, Name: "Site relaunch", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p.ID
}

func TestWorkspaceCreatedLazilyWithDefaultIntegrations(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	integrations, err := env.Engine.ListProjectIntegrations(env.Ctx, "acme", pid)
	if err != nil {
		t.Fatalf("list integrations: %v", err)
	}
	if len(integrations) != 3 {
		t.Fatalf("expected three seeded integrations, got %d", len(integrations))
	}
	for _, in := range integrations {
		if in.Status != "disconnected" {
			t.Fatalf("expected disconnected seed, got %+v", in)
		}
	}

	// second access reuses the same workspace
	ws1, err := env.Engine.EnsureWorkspace(env.Ctx, "acme", pid)
	if err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	ws2, err := env.Engine.EnsureWorkspace(env.Ctx, "acme", pid)
	if err != nil || ws1.ID != ws2.ID {
		t.Fatalf("workspace not stable: %v vs %v", ws1.ID, ws2.ID)
	}
}

func TestEntityCRUDWithAliases(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	// singular alias resolves to the canonical kind
	rec, err := env.Engine.MutateWorkspaceEntity(env.Ctx, engine.WorkspaceMutateOptions{
		OwnerID: "acme", ProjectID: pid, Entity: "task",
		Payload: map[string]any{"title": "Wireframes", "status": "todo", "priority": "high"},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if rec.ID == "" || rec.Fields["title"] != "Wireframes" {
		t.Fatalf("unexpected record %+v", rec)
	}

	rec, err = env.Engine.MutateWorkspaceEntity(env.Ctx, engine.WorkspaceMutateOptions{
		OwnerID: "acme", ProjectID: pid, Entity: "tasks",
		Payload:  map[string]any{"status": "done"},
		RecordID: rec.ID, IsUpdate: true, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if rec.Fields["status"] != "done" || rec.Fields["title"] != "Wireframes" {
		t.Fatalf("partial update lost fields: %+v", rec.Fields)
	}

	items, err := env.Engine.ListWorkspaceEntities(env.Ctx, "acme", pid, "tasks")
	if err != nil || len(items) != 1 {
		t.Fatalf("list tasks: %v %v", items, err)
	}

	if _, err := env.Engine.MutateWorkspaceEntity(env.Ctx, engine.WorkspaceMutateOptions{
		OwnerID: "acme", ProjectID: pid, Entity: "tasks",
		RecordID: rec.ID, IsDelete: true, ActorID: "tester",
	}); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	items, err = env.Engine.ListWorkspaceEntities(env.Ctx, "acme", pid, "tasks")
	if err != nil || len(items) != 0 {
		t.Fatalf("task survived delete: %v", items)
	}
}

func TestUnknownEntityKindRejected(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	var verr engine.ValidationError
	_, err := env.Engine.MutateWorkspaceEntity(env.Ctx, engine.WorkspaceMutateOptions{
		OwnerID: "acme", ProjectID: pid, Entity: "secrets",
		Payload: map[string]any{"name": "x"}, ActorID: "tester",
	})
	if !errors.As(err, &verr) || verr.Field != "entity" {
		t.Fatalf("expected entity validation error, got %v", err)
	}
	if _, err := env.Engine.ListWorkspaceEntities(env.Ctx, "acme", pid, "secrets"); err == nil {
		t.Fatalf("expected list rejection for unknown kind")
	}
}

func TestEnumRejectionBeforeWrite(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	_, err := env.Engine.MutateWorkspaceEntity(env.Ctx, engine.WorkspaceMutateOptions{
		OwnerID: "acme", ProjectID: pid, Entity: "tasks",
		Payload: map[string]any{"title": "Bad", "status": "someday"},
		ActorID: "tester",
	})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	items, err := env.Engine.ListWorkspaceEntities(env.Ctx, "acme", pid, "tasks")
	if err != nil || len(items) != 0 {
		t.Fatalf("rejected payload reached the table: %v", items)
	}
}

func TestRequiredFieldsOnCreateOnly(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	_, err := env.Engine.MutateWorkspaceEntity(env.Ctx, engine.WorkspaceMutateOptions{
		OwnerID: "acme", ProjectID: pid, Entity: "time-entries",
		Payload: map[string]any{"person_name": "Dana"},
		ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected missing hours to be rejected")
	}

	rec, err := env.Engine.MutateWorkspaceEntity(env.Ctx, engine.WorkspaceMutateOptions{
		OwnerID: "acme", ProjectID: pid, Entity: "time-entries",
		Payload: map[string]any{"person_name": "Dana", "hours": "7.5", "billable": "yes"},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create time entry: %v", err)
	}
	// partial update may omit required fields
	if _, err := env.Engine.MutateWorkspaceEntity(env.Ctx, engine.WorkspaceMutateOptions{
		OwnerID: "acme", ProjectID: pid, Entity: "time-entries",
		Payload:  map[string]any{"task_ref": "T-1"},
		RecordID: rec.ID, IsUpdate: true, ActorID: "tester",
	}); err != nil {
		t.Fatalf("partial update: %v", err)
	}
}

func TestDeleteUnknownRecordLeavesTableIntact(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	if _, err := env.Engine.MutateWorkspaceEntity(env.Ctx, engine.WorkspaceMutateOptions{
		OwnerID: "acme", ProjectID: pid, Entity: "documents",
		Payload: map[string]any{"title": "Contract", "doc_type": "contract"},
		ActorID: "tester",
	}); err != nil {
		t.Fatalf("create document: %v", err)
	}
	_, err := env.Engine.MutateWorkspaceEntity(env.Ctx, engine.WorkspaceMutateOptions{
		OwnerID: "acme", ProjectID: pid, Entity: "documents",
		RecordID: "missing", IsDelete: true, ActorID: "tester",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	items, err := env.Engine.ListWorkspaceEntities(env.Ctx, "acme", pid, "documents")
	if err != nil || len(items) != 1 {
		t.Fatalf("table changed by failed delete: %v", items)
	}
}

func TestWorkspaceSnapshotSummary(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	seed := []struct {
		entity  string
		payload map[string]any
	}{
		{"budget-lines", map[string]any{"category": "design", "amount": 1000, "status": "spent"}},
		{"budget-lines", map[string]any{"category": "dev", "amount": 4000, "status": "approved"}},
		{"tasks", map[string]any{"title": "a", "status": "done", "start_date": "2026-01-02", "due_date": "2026-01-05"}},
		{"tasks", map[string]any{"title": "b", "status": "todo", "due_date": "2026-02-01"}},
		{"time-entries", map[string]any{"person_name": "Dana", "hours": 3.5}},
		{"time-entries", map[string]any{"person_name": "Ibrahim", "hours": 4}},
		{"objectives", map[string]any{"title": "launch", "status": "at_risk"}},
		{"invites", map[string]any{"email": "a@b.c", "status": "accepted"}},
		{"meetings", map[string]any{"title": "sync", "scheduled_at": "2026-01-12T09:00:00Z"}},
		{"meetings", map[string]any{"title": "past", "scheduled_at": "2026-01-01T09:00:00Z"}},
	}
	for _, s := range seed {
		if _, err := env.Engine.MutateWorkspaceEntity(env.Ctx, engine.WorkspaceMutateOptions{
			OwnerID: "acme", ProjectID: pid, Entity: s.entity, Payload: s.payload, ActorID: "tester",
		}); err != nil {
			t.Fatalf("seed %s: %v", s.entity, err)
		}
	}

	view, err := env.Engine.GetWorkspaceSnapshot(env.Ctx, "acme", pid)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	s := view.Summary
	if s.BudgetTotal != 5000 || s.BudgetSpent != 1000 {
		t.Fatalf("unexpected budget %+v", s)
	}
	if s.TaskCount != 2 || s.TasksDone != 1 {
		t.Fatalf("unexpected tasks %+v", s)
	}
	if s.HoursLogged != 7.5 {
		t.Fatalf("unexpected hours %v", s.HoursLogged)
	}
	if s.ObjectivesAtRisk != 1 || s.InvitesAccepted != 1 {
		t.Fatalf("unexpected risk/invites %+v", s)
	}
	if s.NextMeetingAt == nil || *s.NextMeetingAt != "2026-01-12T09:00:00Z" {
		t.Fatalf("unexpected next meeting %v", s.NextMeetingAt)
	}
	if view.Timeline.EarliestAt == nil || *view.Timeline.EarliestAt != "2026-01-02T00:00:00Z" {
		t.Fatalf("unexpected timeline start %v", view.Timeline.EarliestAt)
	}
	if view.Timeline.LatestAt == nil || *view.Timeline.LatestAt != "2026-02-01T00:00:00Z" {
		t.Fatalf("unexpected timeline end %v", view.Timeline.LatestAt)
	}
}

func TestIntegrationUpdate(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	in, err := env.Engine.UpdateProjectIntegration(env.Ctx, "acme", pid, "slack", "connected", `{"channel":"#proj"}`, "tester")
	if err != nil {
		t.Fatalf("update integration: %v", err)
	}
	if in.Status != "connected" {
		t.Fatalf("unexpected integration %+v", in)
	}
	if _, err := env.Engine.UpdateProjectIntegration(env.Ctx, "acme", pid, "jira", "connected", "", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected unknown provider not found, got %v", err)
	}
	if _, err := env.Engine.UpdateProjectIntegration(env.Ctx, "acme", pid, "slack", "broken", "", "tester"); err == nil {
		t.Fatalf("expected invalid status rejection")
	}
}

func TestProjectOwnershipIsolation(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	if _, err := env.Engine.GetWorkspaceSnapshot(env.Ctx, "rival", pid); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected foreign project to read as not found, got %v", err)
	}
}

func TestProjectUpdatePersists(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	status := "paused"
	desc := "on hold until Q2"
	p, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{
		OwnerID: "acme", ProjectID: pid, Status: &status, Description: &desc, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update project: %v", err)
	}
	if p.Status != "paused" || p.Description != "on hold until Q2" {
		t.Fatalf("update not persisted: %+v", p)
	}

	bad := "parked"
	var verr engine.ValidationError
	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{
		OwnerID: "acme", ProjectID: pid, Status: &bad, ActorID: "tester",
	})
	if !errors.As(err, &verr) || verr.Field != "status" {
		t.Fatalf("expected status validation error, got %v", err)
	}

	status = "active"
	if _, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{
		OwnerID: "rival", ProjectID: pid, Status: &status, ActorID: "tester",
	}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected foreign project update to read as not found, got %v", err)
	}
}

func TestWorkspaceSummaryUpdatePersists(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	status := "at_risk"
	progress := 40
	risk := "high"
	notes := "vendor slipping on milestones"
	ws, err := env.Engine.UpdateWorkspaceSummary(env.Ctx, engine.WorkspaceSummaryUpdateOptions{
		OwnerID: "acme", ProjectID: pid,
		Status: &status, ProgressPercent: &progress, RiskLevel: &risk, Notes: &notes,
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update summary: %v", err)
	}
	if ws.Status != "at_risk" || ws.ProgressPercent != 40 || ws.RiskLevel != "high" {
		t.Fatalf("update not persisted: %+v", ws)
	}
	if ws.Notes != "vendor slipping on milestones" {
		t.Fatalf("notes lost: %+v", ws)
	}

	// partial update leaves the other columns alone
	progress = 55
	ws, err = env.Engine.UpdateWorkspaceSummary(env.Ctx, engine.WorkspaceSummaryUpdateOptions{
		OwnerID: "acme", ProjectID: pid, ProgressPercent: &progress, ActorID: "tester",
	})
	if err != nil || ws.ProgressPercent != 55 || ws.Status != "at_risk" || ws.RiskLevel != "high" {
		t.Fatalf("partial update clobbered fields: %v %+v", err, ws)
	}

	var verr engine.ValidationError
	badRisk := "severe"
	if _, err := env.Engine.UpdateWorkspaceSummary(env.Ctx, engine.WorkspaceSummaryUpdateOptions{
		OwnerID: "acme", ProjectID: pid, RiskLevel: &badRisk, ActorID: "tester",
	}); !errors.As(err, &verr) || verr.Field != "risk_level" {
		t.Fatalf("expected risk_level validation error, got %v", err)
	}
	over := 120
	if _, err := env.Engine.UpdateWorkspaceSummary(env.Ctx, engine.WorkspaceSummaryUpdateOptions{
		OwnerID: "acme", ProjectID: pid, ProgressPercent: &over, ActorID: "tester",
	}); !errors.As(err, &verr) || verr.Field != "progress_percent" {
		t.Fatalf("expected progress_percent validation error, got %v", err)
	}
}

func TestConcurrentWorkspaceCreation(t *testing.T) {
	env := newTestEnv(t)
	pid := mustCreateProject(t, env, "acme")

	// drop the lazily seeded workspace so first access races again
	if _, err := env.Engine.DB.Exec(`DELETE FROM project_integrations WHERE project_id = ?`, pid); err != nil {
		t.Fatalf("clear integrations: %v", err)
	}
	if _, err := env.Engine.DB.Exec(`DELETE FROM project_workspaces WHERE project_id = ?`, pid); err != nil {
		t.Fatalf("clear workspace: %v", err)
	}

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ws, err := env.Engine.EnsureWorkspace(env.Ctx, "acme", pid)
			ids[i], errs[i] = ws.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if ids[i] == "" || ids[i] != ids[0] {
			t.Fatalf("callers disagree on workspace: %v", ids)
		}
	}

	integrations, err := env.Engine.ListProjectIntegrations(env.Ctx, "acme", pid)
	if err != nil || len(integrations) != 3 {
		t.Fatalf("expected three seeded integrations after the race, got %d (%v)", len(integrations), err)
	}
}
