package giglinesdk_test

import (
	"context"
	"net"
	"net/http"
	"testing"

	"gigline/internal/cache"
	"gigline/internal/config"
	"gigline/internal/db"
	"gigline/internal/engine"
	"gigline/internal/migrate"
	"gigline/internal/server"
	giglinesdk "gigline/sdk/go"
)

func newTestAPI(t *testing.T) string {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	c := cache.New()
	e := engine.New(conn, config.Default(), c)
	handler, err := server.New(server.Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: server.AuthConfig{
			JWTSecret:              "sdk-test-secret",
			AllowLegacyOwnerHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		c.Stop()
		conn.Close()
	})
	return "http://" + ln.Addr().String()
}

func newTestClient(t *testing.T, owner string) *giglinesdk.Client {
	t.Helper()
	client := giglinesdk.New(newTestAPI(t))
	client.OwnerID = owner
	return client
}

func TestOrderRoundTrip(t *testing.T) {
	client := newTestClient(t, "acme")
	ctx := context.Background()

	created, err := client.CreateOrder(ctx, "Pixel Studio", "Logo design", 300, "2099-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if created.ID == "" || created.Status != "pending" {
		t.Fatalf("unexpected order %+v", created)
	}

	updated, err := client.UpdateOrderStatus(ctx, created.ID, "in_delivery")
	if err != nil || updated.Status != "in_delivery" {
		t.Fatalf("update status: %v %+v", err, updated)
	}

	orders, err := client.ListOrders(ctx, "in_delivery")
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", orders)
	}
}

func TestDashboardAndEscalations(t *testing.T) {
	client := newTestClient(t, "acme")
	ctx := context.Background()

	order, err := client.CreateOrder(ctx, "Pixel Studio", "Logo design", 100, "2020-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	dash, err := client.OrdersDashboard(ctx, "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.OwnerID != "acme" || dash.Metrics.TotalOrders != 1 {
		t.Fatalf("unexpected dashboard %+v", dash)
	}
	if dash.SLABreaches != 1 {
		t.Fatalf("expected one breach, got %d", dash.SLABreaches)
	}

	open, err := client.ListEscalations(ctx, true)
	if err != nil {
		t.Fatalf("list escalations: %v", err)
	}
	if len(open) != 1 || open[0].OrderID != order.ID {
		t.Fatalf("unexpected escalations %+v", open)
	}

	n, err := client.ResolveEscalations(ctx, order.ID, "handled out of band")
	if err != nil || n != 1 {
		t.Fatalf("resolve: %v n=%d", err, n)
	}
	open, err = client.ListEscalations(ctx, true)
	if err != nil || len(open) != 0 {
		t.Fatalf("escalations still open: %+v", open)
	}
}

func TestWorkspaceEntityRoundTrip(t *testing.T) {
	client := newTestClient(t, "acme")
	ctx := context.Background()

	project, err := client.CreateProject(ctx, "Site relaunch")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	projects, err := client.ListProjects(ctx)
	if err != nil || len(projects) != 1 {
		t.Fatalf("list projects: %v %+v", err, projects)
	}

	rec, err := client.CreateWorkspaceEntity(ctx, project.ID, "tasks", map[string]any{
		"title":  "Wireframes",
		"status": "todo",
	})
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}
	rec, err = client.UpdateWorkspaceEntity(ctx, project.ID, "tasks", rec.ID, map[string]any{
		"status": "done",
	})
	if err != nil || rec.Fields["status"] != "done" {
		t.Fatalf("update entity: %v %+v", err, rec)
	}
	if err := client.DeleteWorkspaceEntity(ctx, project.ID, "tasks", rec.ID); err != nil {
		t.Fatalf("delete entity: %v", err)
	}
	items, err := client.ListWorkspaceEntities(ctx, project.ID, "tasks")
	if err != nil || len(items) != 0 {
		t.Fatalf("entity survived delete: %+v", items)
	}
}

func TestErrorsSurfaceAsAPIError(t *testing.T) {
	client := newTestClient(t, "acme")
	ctx := context.Background()

	_, err := client.CreateOrder(ctx, "Pixel Studio", "", 0, "")
	apiErr, ok := err.(*giglinesdk.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", apiErr.StatusCode)
	}

	unauth := giglinesdk.New(client.BaseURL)
	if _, err := unauth.ListOrders(ctx, ""); err == nil {
		t.Fatalf("expected auth failure without credentials")
	}
}
