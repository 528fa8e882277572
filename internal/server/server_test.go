package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gigline/internal/cache"
	"gigline/internal/config"
	"gigline/internal/db"
	"gigline/internal/domain"
	"gigline/internal/engine"
	"gigline/internal/migrate"
	"gigline/internal/repo"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
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
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              testJWTSecret,
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
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			c.Stop()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func mintToken(t *testing.T, sub, owner string, permissions []string) string {
	t.Helper()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		OwnerID:     owner,
		Permissions: permissions,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func ownerHeaders(owner string) map[string]string {
	return map[string]string{"X-Owner-Id": owner}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	headers := ownerHeaders("acme")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orders", map[string]any{
		"vendor_name":  "Pixel Studio",
		"service_name": "Logo design",
		"amount":       300,
		"due_at":       "2099-01-01T00:00:00Z",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create order status %d: %s", res.StatusCode, data)
	}
	var created domain.GigOrder
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal order: %v", err)
	}
	if created.Status != "pending" || created.Currency != "USD" {
		t.Fatalf("unexpected defaults %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/orders/"+created.ID, map[string]any{
		"status":           "in_delivery",
		"progress_percent": 40,
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/orders/"+created.ID, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, data)
	}
	var detail engine.OrderDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if detail.Order.Status != "in_delivery" || detail.Order.ProgressPercent != 40 {
		t.Fatalf("unexpected order %+v", detail.Order)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/orders/"+created.ID, nil, headers)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, data)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/orders/"+created.ID, nil, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
}

func TestValidationErrorsMapTo400(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/orders", map[string]any{
		"vendor_name": "Pixel Studio",
	}, ownerHeaders("acme"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, data)
	}
	var body struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if body.Error.Code != "bad_request" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestMissingAuthRejected(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/orders", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestJWTAuthAndTenantIsolation(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	acme := map[string]string{"Authorization": "Bearer " + mintToken(t, "user-1", "acme", []string{"orders.manage"})}
	rival := map[string]string{"Authorization": "Bearer " + mintToken(t, "user-2", "rival", nil)}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orders", map[string]any{
		"vendor_name":  "Pixel Studio",
		"service_name": "Logo design",
	}, acme)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, data)
	}
	var created domain.GigOrder
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/orders/"+created.ID, nil, rival)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected cross-tenant 404, got %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/orders", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	rawKey := "gl_live_" + uuid.New().String()
	err := srv.Engine.Repo.InsertAPIKey(context.Background(), nil, domain.APIKey{
		ID:      uuid.New().String(),
		ActorID: "acme",
		Name:    "ci",
		KeyHash: repo.HashAPIKey(rawKey),
	})
	if err != nil {
		t.Fatalf("insert api key: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/orders/dashboard", nil, map[string]string{
		"X-Api-Key": rawKey,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status %d: %s", res.StatusCode, data)
	}
	var snap engine.DashboardSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.OwnerID != "acme" {
		t.Fatalf("expected api key owner scoping, got %q", snap.OwnerID)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/orders", nil, map[string]string{
		"X-Api-Key": "wrong-key",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad api key, got %d", res.StatusCode)
	}
}

func TestDashboardDetectionRespectsPermissions(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	manager := map[string]string{"Authorization": "Bearer " + mintToken(t, "mgr", "acme", []string{"orders.manage"})}
	viewer := map[string]string{"Authorization": "Bearer " + mintToken(t, "viewer", "acme", nil)}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orders", map[string]any{
		"vendor_name":  "Pixel Studio",
		"service_name": "Logo design",
		"due_at":       "2020-01-01T00:00:00Z",
	}, manager)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, data)
	}

	// viewer sees breaches but persists nothing
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/orders/dashboard", nil, viewer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("viewer dashboard %d: %s", res.StatusCode, data)
	}
	var snap engine.DashboardSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.SLABreaches != 1 || snap.Alerts[0].EscalationID != nil {
		t.Fatalf("viewer run should be read only: %+v", snap.Alerts)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/escalations?open=true", nil, manager)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("escalations %d: %s", res.StatusCode, data)
	}
	var open []domain.OrderEscalation
	if err := json.Unmarshal(data, &open); err != nil {
		t.Fatalf("unmarshal escalations: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("viewer dashboard persisted escalations: %+v", open)
	}

	// manager run escalates
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/orders/dashboard", nil, manager)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("manager dashboard %d: %s", res.StatusCode, data)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.SLABreaches != 1 || snap.Alerts[0].EscalationID == nil {
		t.Fatalf("manager run should persist: %+v", snap.Alerts)
	}
}

func TestWorkspaceEntityRoutes(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	headers := ownerHeaders("acme")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name": "Site relaunch",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project %d: %s", res.StatusCode, data)
	}
	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	base := srv.URL + "/v0/projects/" + project.ID + "/workspace/management"

	res, data = doJSON(t, client, http.MethodPost, base+"/tasks", map[string]any{
		"title":  "Wireframes",
		"status": "todo",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task %d: %s", res.StatusCode, data)
	}
	var rec domain.WorkspaceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPut, base+"/tasks/"+rec.ID, map[string]any{
		"status": "done",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update task %d: %s", res.StatusCode, data)
	}

	// dedicated handlers win over the generic {entity} route
	res, data = doJSON(t, client, http.MethodGet, base+"/integrations", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("integrations %d: %s", res.StatusCode, data)
	}
	var integrations []domain.ProjectIntegration
	if err := json.Unmarshal(data, &integrations); err != nil {
		t.Fatalf("unmarshal integrations: %v", err)
	}
	if len(integrations) != 3 {
		t.Fatalf("expected seeded integrations, got %d", len(integrations))
	}

	res, data = doJSON(t, client, http.MethodGet, base, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("snapshot %d: %s", res.StatusCode, data)
	}
	var view engine.WorkspaceView
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("unmarshal view: %v", err)
	}
	if view.Summary.TaskCount != 1 || view.Summary.TasksDone != 1 {
		t.Fatalf("unexpected summary %+v", view.Summary)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/secrets", map[string]any{"name": "x"}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown entity, got %d: %s", res.StatusCode, data)
	}
}

func TestProjectAndSummaryMutationRoutes(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	headers := ownerHeaders("acme")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name": "Site relaunch",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, data)
	}
	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/"+project.ID, map[string]any{
		"status":      "paused",
		"description": "on hold",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch project status %d: %s", res.StatusCode, data)
	}
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if project.Status != "paused" || project.Description != "on hold" {
		t.Fatalf("project mutation not persisted: %+v", project)
	}

	summaryURL := srv.URL + "/v0/projects/" + project.ID + "/workspace/management/summary"
	res, data = doJSON(t, client, http.MethodPut, summaryURL, map[string]any{
		"status":           "at_risk",
		"progress_percent": 35,
		"risk_level":       "high",
		"notes":            "behind on milestones",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put summary status %d: %s", res.StatusCode, data)
	}
	var ws domain.ProjectWorkspace
	if err := json.Unmarshal(data, &ws); err != nil {
		t.Fatalf("unmarshal workspace: %v", err)
	}
	if ws.Status != "at_risk" || ws.ProgressPercent != 35 || ws.RiskLevel != "high" {
		t.Fatalf("summary mutation left seeded defaults: %+v", ws)
	}

	res, data = doJSON(t, client, http.MethodPut, summaryURL, map[string]any{
		"risk_level": "severe",
	}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad risk level, got %d: %s", res.StatusCode, data)
	}
}
