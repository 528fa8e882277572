package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gigline/internal/cache"
	"gigline/internal/config"
	"gigline/internal/db"
	"gigline/internal/engine"
	"gigline/internal/migrate"
	"gigline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	c := cache.New()
	t.Cleanup(c.Stop)
	eng := engine.New(conn, config.Default(), c)
	eng.Now = func() time.Time { return time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func mustCreateOrder(t *testing.T, env testEnv, opts engine.OrderCreateOptions) string {
	t.Helper()
	if opts.OwnerID == "" {
		opts.OwnerID = "acme"
	}
	if opts.VendorName == "" {
		opts.VendorName = "Pixel Studio"
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "Logo design"
	}
	if opts.ActorID == "" {
		opts.ActorID = "tester"
	}
	o, err := env.Engine.CreateOrder(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o.ID
}

func TestOverdueOrderEscalatesCritical(t *testing.T) {
	env := newTestEnv(t)
	// 30h past due relative to the fixed clock
	id := mustCreateOrder(t, env, engine.OrderCreateOptions{DueAt: "2026-01-08T18:00:00Z"})

	snap, err := env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme", Escalate: true})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if snap.SLABreaches != 1 || len(snap.Alerts) != 1 {
		t.Fatalf("expected one breach, got %d", snap.SLABreaches)
	}
	a := snap.Alerts[0]
	if a.OrderID != id || a.Severity != "critical" || a.HoursOverdue != 30 {
		t.Fatalf("unexpected alert %+v", a)
	}
	esc, err := env.Engine.OpenOrderEscalation(env.Ctx, "acme", id)
	if err != nil {
		t.Fatalf("open escalation: %v", err)
	}
	if esc.Status != "queued" || esc.HoursOverdue != 30 {
		t.Fatalf("unexpected escalation %+v", esc)
	}
}

func TestEscalationIdempotentAcrossRuns(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateOrder(t, env, engine.OrderCreateOptions{DueAt: "2026-01-09T12:00:00Z"})

	for i := 0; i < 3; i++ {
		if _, err := env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme", Escalate: true}); err != nil {
			t.Fatalf("dashboard run %d: %v", i, err)
		}
	}
	open, err := env.Engine.ListEscalations(env.Ctx, repo.EscalationFilters{OwnerID: "acme", OrderID: id, OpenOnly: true})
	if err != nil {
		t.Fatalf("list escalations: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected a single open escalation, got %d", len(open))
	}
	if open[0].Severity != "warning" || open[0].HoursOverdue != 12 {
		t.Fatalf("unexpected escalation %+v", open[0])
	}
}

func TestReadOnlyDetectionWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	mustCreateOrder(t, env, engine.OrderCreateOptions{DueAt: "2026-01-09T12:00:00Z"})

	snap, err := env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme"})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if snap.SLABreaches != 1 {
		t.Fatalf("expected breach to be reported, got %d", snap.SLABreaches)
	}
	if snap.Alerts[0].EscalationID != nil {
		t.Fatalf("read-only run must not reference an escalation row")
	}
	all, err := env.Engine.ListEscalations(env.Ctx, repo.EscalationFilters{OwnerID: "acme"})
	if err != nil {
		t.Fatalf("list escalations: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("read-only run persisted %d escalation(s)", len(all))
	}
}

func TestClosedOrdersNeverBreach(t *testing.T) {
	env := newTestEnv(t)
	mustCreateOrder(t, env, engine.OrderCreateOptions{Status: "completed", DueAt: "2025-12-01T00:00:00Z"})

	snap, err := env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme", Escalate: true})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if snap.SLABreaches != 0 {
		t.Fatalf("closed order breached: %+v", snap.Alerts)
	}
}

func TestClosingOrderResolvesEscalations(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateOrder(t, env, engine.OrderCreateOptions{DueAt: "2026-01-08T00:00:00Z"})
	if _, err := env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme", Escalate: true}); err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	status := "completed"
	if _, err := env.Engine.UpdateGigOrder(env.Ctx, engine.OrderUpdateOptions{
		OwnerID: "acme", OrderID: id, Status: &status, ActorID: "tester",
	}); err != nil {
		t.Fatalf("update order: %v", err)
	}

	if _, err := env.Engine.OpenOrderEscalation(env.Ctx, "acme", id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected no open escalation, got %v", err)
	}
	all, err := env.Engine.ListEscalations(env.Ctx, repo.EscalationFilters{OwnerID: "acme", OrderID: id})
	if err != nil {
		t.Fatalf("list escalations: %v", err)
	}
	if len(all) != 1 || all[0].Status != "resolved" {
		t.Fatalf("expected one resolved escalation, got %+v", all)
	}
}

func TestDeletingOrderResolvesEscalations(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateOrder(t, env, engine.OrderCreateOptions{DueAt: "2026-01-08T00:00:00Z"})
	if _, err := env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme", Escalate: true}); err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if err := env.Engine.DeleteOrder(env.Ctx, "acme", id, "tester"); err != nil {
		t.Fatalf("delete order: %v", err)
	}
	open, err := env.Engine.ListEscalations(env.Ctx, repo.EscalationFilters{OwnerID: "acme", OpenOnly: true})
	if err != nil {
		t.Fatalf("list escalations: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("escalations survived order deletion: %+v", open)
	}
}

func TestDashboardCachedUntilInvalidated(t *testing.T) {
	env := newTestEnv(t)
	mustCreateOrder(t, env, engine.OrderCreateOptions{Amount: 100})

	snap, err := env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme"})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if snap.Metrics.TotalOrders != 1 {
		t.Fatalf("expected one order, got %d", snap.Metrics.TotalOrders)
	}

	// insert behind the engine's back so only the cache can answer stale
	_, err = env.Engine.DB.ExecContext(env.Ctx, `INSERT INTO gig_orders
		(id, owner_id, vendor_name, service_name, status, progress_percent, amount, currency, created_at, updated_at)
		VALUES ('raw-1', 'acme', 'v', 's', 'pending', 0, 50, 'USD', '2026-01-10T00:00:00Z', '2026-01-10T00:00:00Z')`)
	if err != nil {
		t.Fatalf("raw insert: %v", err)
	}

	snap, err = env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme"})
	if err != nil {
		t.Fatalf("dashboard (cached): %v", err)
	}
	if snap.Metrics.TotalOrders != 1 {
		t.Fatalf("expected cached total 1, got %d", snap.Metrics.TotalOrders)
	}

	// any owner-scoped mutation flushes every dashboard variant
	mustCreateOrder(t, env, engine.OrderCreateOptions{Amount: 25})
	snap, err = env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme"})
	if err != nil {
		t.Fatalf("dashboard (fresh): %v", err)
	}
	if snap.Metrics.TotalOrders != 3 {
		t.Fatalf("expected fresh total 3, got %d", snap.Metrics.TotalOrders)
	}
}

func TestDashboardMetricsAndStatusBuckets(t *testing.T) {
	env := newTestEnv(t)
	mustCreateOrder(t, env, engine.OrderCreateOptions{Amount: 100, Status: "in_delivery"})
	mustCreateOrder(t, env, engine.OrderCreateOptions{Amount: 40, Status: "completed"})

	snap, err := env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme"})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	m := snap.Metrics
	if m.TotalOrders != 2 || m.OpenOrders != 1 || m.ClosedOrders != 1 {
		t.Fatalf("unexpected counts %+v", m)
	}
	if m.ValueInFlight != 100 {
		t.Fatalf("expected value in flight 100, got %v", m.ValueInFlight)
	}

	open, err := env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme", Status: "open"})
	if err != nil {
		t.Fatalf("dashboard open: %v", err)
	}
	if len(open.Orders) != 1 || open.Orders[0].Status != "in_delivery" {
		t.Fatalf("unexpected open bucket %+v", open.Orders)
	}
	closed, err := env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme", Status: "closed"})
	if err != nil {
		t.Fatalf("dashboard closed: %v", err)
	}
	if len(closed.Orders) != 1 || closed.Orders[0].Status != "completed" {
		t.Fatalf("unexpected closed bucket %+v", closed.Orders)
	}
	if _, err := env.Engine.Dashboard(env.Ctx, engine.DashboardOptions{OwnerID: "acme", Status: "bogus"}); err == nil {
		t.Fatalf("expected invalid status filter to be rejected")
	}
}

func TestEscrowReleaseOnce(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateOrder(t, env, engine.OrderCreateOptions{Amount: 500})

	c, err := env.Engine.PostEscrowCheckpoint(env.Ctx, engine.EscrowCreateOptions{
		OwnerID: "acme", OrderID: id, Label: "kickoff", Amount: 250, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("post checkpoint: %v", err)
	}
	if c.Status != "held" {
		t.Fatalf("expected held, got %s", c.Status)
	}

	released, err := env.Engine.ReleaseEscrowCheckpoint(env.Ctx, "acme", id, c.ID, "tester")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != "released" || released.ReleasedAt == nil {
		t.Fatalf("unexpected checkpoint %+v", released)
	}

	var conflict engine.ConflictError
	_, err = env.Engine.ReleaseEscrowCheckpoint(env.Ctx, "acme", id, c.ID, "tester")
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict on double release, got %v", err)
	}
}

func TestEscrowRejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateOrder(t, env, engine.OrderCreateOptions{})
	var verr engine.ValidationError
	_, err := env.Engine.PostEscrowCheckpoint(env.Ctx, engine.EscrowCreateOptions{
		OwnerID: "acme", OrderID: id, Label: "bad", Amount: 0, ActorID: "tester",
	})
	if !errors.As(err, &verr) || verr.Field != "amount" {
		t.Fatalf("expected amount validation error, got %v", err)
	}
}

func TestOwnershipMismatchReadsAsNotFound(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateOrder(t, env, engine.OrderCreateOptions{OwnerID: "acme"})

	if _, err := env.Engine.GetOrderDetail(env.Ctx, "rival", id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for foreign owner, got %v", err)
	}
	status := "completed"
	if _, err := env.Engine.UpdateGigOrder(env.Ctx, engine.OrderUpdateOptions{
		OwnerID: "rival", OrderID: id, Status: &status, ActorID: "tester",
	}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on foreign update, got %v", err)
	}
}

func TestOrderDetailAggregates(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateOrder(t, env, engine.OrderCreateOptions{
		Requirements: []engine.RequirementInput{{Question: "Brand colors?", Answer: "Blue"}},
	})
	if _, err := env.Engine.AddOrderMessage(env.Ctx, "acme", id, "buyer", "Looks good"); err != nil {
		t.Fatalf("message: %v", err)
	}
	if _, err := env.Engine.RateOrder(env.Ctx, "acme", id, engine.ScorecardInput{
		Quality: 4, Communication: 5, Timeliness: 5,
	}, "tester"); err != nil {
		t.Fatalf("rate: %v", err)
	}

	detail, err := env.Engine.GetOrderDetail(env.Ctx, "acme", id)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Requirements) != 1 || len(detail.Messages) != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if detail.Scorecard == nil || detail.Scorecard.Quality != 4 {
		t.Fatalf("unexpected scorecard %+v", detail.Scorecard)
	}
	// order.created activity from the create
	if len(detail.Activities) == 0 {
		t.Fatalf("expected activity timeline")
	}
}

func TestApplicationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateApplication(env.Ctx, engine.ApplicationCreateOptions{
		OwnerID: "acme", CandidateName: "Dana", RoleTitle: "Designer", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	if a.Status != "submitted" {
		t.Fatalf("expected submitted default, got %s", a.Status)
	}
	status := "interview"
	a, err = env.Engine.UpdateApplication(env.Ctx, engine.ApplicationUpdateOptions{
		OwnerID: "acme", ID: a.ID, Status: &status, ActorID: "tester",
	})
	if err != nil || a.Status != "interview" {
		t.Fatalf("update application: %v", err)
	}
	bad := "ghosted"
	if _, err := env.Engine.UpdateApplication(env.Ctx, engine.ApplicationUpdateOptions{
		OwnerID: "acme", ID: a.ID, Status: &bad, ActorID: "tester",
	}); err == nil {
		t.Fatalf("expected invalid status rejection")
	}
	if err := env.Engine.DeleteApplication(env.Ctx, "acme", a.ID, "tester"); err != nil {
		t.Fatalf("delete application: %v", err)
	}
	items, err := env.Engine.ListApplications(env.Ctx, "acme", "")
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty list, got %v %v", items, err)
	}
}

func TestAuditTrailCappedPerEntity(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateOrder(t, env, engine.OrderCreateOptions{})

	// every rating writes an audit row; push well past the retention limit
	for i := 0; i < 80; i++ {
		if _, err := env.Engine.RateOrder(env.Ctx, "acme", id, engine.ScorecardInput{
			Quality: 4, Communication: 5, Timeliness: 5,
		}, "tester"); err != nil {
			t.Fatalf("rate %d: %v", i, err)
		}
	}

	limit := env.Engine.Config.Audit.MaxEntriesPerEntity
	var n int
	row := env.Engine.DB.QueryRow(
		`SELECT COUNT(*) FROM audit_entries WHERE entity_kind = 'order' AND entity_id = ?`, id)
	if err := row.Scan(&n); err != nil {
		t.Fatalf("count audit entries: %v", err)
	}
	if n != limit {
		t.Fatalf("expected trail pinned at %d entries, got %d", limit, n)
	}
}
