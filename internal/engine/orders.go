package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"gigline/internal/audit"
	"gigline/internal/domain"
	"gigline/internal/repo"
)

var orderStatuses = []string{"pending", "kickoff", "in_delivery", "in_revision", "completed", "closed", "cancelled", "archived"}

func validOrderStatus(status string) bool {
	for _, s := range orderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type DashboardMetrics struct {
	TotalOrders   int     `json:"total_orders"`
	OpenOrders    int     `json:"open_orders"`
	ClosedOrders  int     `json:"closed_orders"`
	ValueInFlight float64 `json:"value_in_flight"`
	EscrowHeld    float64 `json:"escrow_held"`
}

// dashboardBody is the cached portion of a dashboard: orders and metrics
// only. Breach detection is re-run on every read and never cached.
type dashboardBody struct {
	Orders      []domain.GigOrder `json:"orders"`
	Metrics     DashboardMetrics  `json:"metrics"`
	GeneratedAt string            `json:"generated_at"`
}

type DashboardSnapshot struct {
	OwnerID      string            `json:"owner_id"`
	StatusFilter string            `json:"status_filter,omitempty"`
	GeneratedAt  string            `json:"generated_at" format:"date-time"`
	Orders       []domain.GigOrder `json:"orders"`
	Metrics      DashboardMetrics  `json:"metrics"`
	SLABreaches  int               `json:"sla_breaches"`
	Alerts       []SLAAlert        `json:"alerts,omitempty"`
}

type DashboardOptions struct {
	OwnerID string
	// Status filters the order list: "open", "closed", an exact status, or
	// empty for everything.
	Status string
	// Escalate is set for callers allowed to manage orders; without it
	// breach detection stays side-effect free.
	Escalate bool
}

// Dashboard returns the owner's order dashboard. The base body is cached
// for the configured TTL; the cache hands back a decoded copy, so attaching
// alerts never mutates the stored entry.
func (e Engine) Dashboard(ctx context.Context, opts DashboardOptions) (DashboardSnapshot, error) {
	if opts.OwnerID == "" {
		return DashboardSnapshot{}, validationf("owner_id", "required")
	}
	if opts.Status != "" && opts.Status != "open" && opts.Status != "closed" && !validOrderStatus(opts.Status) {
		return DashboardSnapshot{}, validationf("status", "must be open, closed, or one of %v", orderStatuses)
	}
	key := dashboardCacheKey(opts.OwnerID, opts.Status)
	var body dashboardBody
	if !e.Cache.GetJSON(key, &body) {
		loaded, err := e.loadDashboardBody(ctx, opts.OwnerID, opts.Status)
		if err != nil {
			return DashboardSnapshot{}, err
		}
		body = loaded
		e.Cache.SetJSON(key, body, e.Config.DashboardTTL())
	}

	alerts, breachCount, err := e.DetectSLABreaches(ctx, body.Orders, DetectOptions{OwnerID: opts.OwnerID, Escalate: opts.Escalate})
	if err != nil {
		return DashboardSnapshot{}, err
	}
	return DashboardSnapshot{
		OwnerID:      opts.OwnerID,
		StatusFilter: opts.Status,
		GeneratedAt:  body.GeneratedAt,
		Orders:       body.Orders,
		Metrics:      body.Metrics,
		SLABreaches:  breachCount,
		Alerts:       alerts,
	}, nil
}

func (e Engine) loadDashboardBody(ctx context.Context, ownerID, status string) (dashboardBody, error) {
	all, err := e.Repo.ListOrders(ctx, repo.OrderFilters{OwnerID: ownerID})
	if err != nil {
		return dashboardBody{}, err
	}
	held, err := e.Repo.EscrowHeldByOrder(ctx, ownerID)
	if err != nil {
		return dashboardBody{}, err
	}
	var metrics DashboardMetrics
	filtered := make([]domain.GigOrder, 0, len(all))
	for _, o := range all {
		closed := domain.OrderStatusClosed(o.Status)
		metrics.TotalOrders++
		if closed {
			metrics.ClosedOrders++
		} else {
			metrics.OpenOrders++
			metrics.ValueInFlight += o.Amount
		}
		metrics.EscrowHeld += held[o.ID]
		switch status {
		case "":
		case "open":
			if closed {
				continue
			}
		case "closed":
			if !closed {
				continue
			}
		default:
			if o.Status != status {
				continue
			}
		}
		filtered = append(filtered, o)
	}
	return dashboardBody{
		Orders:      filtered,
		Metrics:     metrics,
		GeneratedAt: e.nowRFC3339(),
	}, nil
}

func (e Engine) ListGigOrders(ctx context.Context, f repo.OrderFilters) ([]domain.GigOrder, error) {
	return e.Repo.ListOrders(ctx, f)
}

func (e Engine) AuditTrail(ctx context.Context, entityKind, entityID string, limit int) ([]domain.AuditEntry, error) {
	return e.Repo.ListAuditEntries(ctx, entityKind, entityID, limit)
}

type RequirementInput struct {
	Question string
	Answer   string
}

type ScorecardInput struct {
	Quality       float64
	Communication float64
	Timeliness    float64
	Comment       string
}

type OrderCreateOptions struct {
	ID           string
	OwnerID      string
	VendorName   string
	ServiceName  string
	Status       string
	Amount       float64
	Currency     string
	KickoffAt    string
	DueAt        string
	Requirements []RequirementInput
	Scorecard    *ScorecardInput
	ActorID      string
}

func (e Engine) CreateOrder(ctx context.Context, opts OrderCreateOptions) (domain.GigOrder, error) {
	if opts.OwnerID == "" {
		return domain.GigOrder{}, validationf("owner_id", "required")
	}
	if opts.VendorName == "" {
		return domain.GigOrder{}, validationf("vendor_name", "required")
	}
	if opts.ServiceName == "" {
		return domain.GigOrder{}, validationf("service_name", "required")
	}
	if opts.Status == "" {
		opts.Status = "pending"
	}
	if !validOrderStatus(opts.Status) {
		return domain.GigOrder{}, validationf("status", "must be one of %v", orderStatuses)
	}
	if opts.Amount < 0 {
		return domain.GigOrder{}, validationf("amount", "must not be negative")
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	for _, ts := range []struct{ field, value string }{{"kickoff_at", opts.KickoffAt}, {"due_at", opts.DueAt}} {
		if ts.value == "" {
			continue
		}
		if _, ok := parseTime(ts.value); !ok {
			return domain.GigOrder{}, validationf(ts.field, "invalid timestamp %q", ts.value)
		}
	}
	for i, req := range opts.Requirements {
		if req.Question == "" {
			return domain.GigOrder{}, validationf("requirements", "entry %d missing question", i)
		}
	}
	if sc := opts.Scorecard; sc != nil {
		for _, score := range []struct {
			field string
			value float64
		}{{"quality", sc.Quality}, {"communication", sc.Communication}, {"timeliness", sc.Timeliness}} {
			if score.value < 0 || score.value > 5 {
				return domain.GigOrder{}, validationf("scorecard."+score.field, "must be between 0 and 5")
			}
		}
	}

	now := e.nowRFC3339()
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	o := domain.GigOrder{
		ID:          id,
		OwnerID:     opts.OwnerID,
		VendorName:  opts.VendorName,
		ServiceName: opts.ServiceName,
		Status:      opts.Status,
		Amount:      opts.Amount,
		Currency:    opts.Currency,
		KickoffAt:   optionalString(opts.KickoffAt),
		DueAt:       optionalString(opts.DueAt),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOrder(ctx, tx, o); err != nil {
		return o, err
	}
	for _, req := range opts.Requirements {
		if err := e.Repo.InsertRequirement(ctx, tx, domain.OrderRequirement{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			Question:  req.Question,
			Answer:    optionalString(req.Answer),
			CreatedAt: now,
		}); err != nil {
			return o, err
		}
	}
	if opts.Scorecard != nil {
		if err := e.Repo.UpsertScorecard(ctx, tx, domain.OrderScorecard{
			OrderID:       o.ID,
			Quality:       opts.Scorecard.Quality,
			Communication: opts.Scorecard.Communication,
			Timeliness:    opts.Scorecard.Timeliness,
			Comment:       opts.Scorecard.Comment,
			CreatedAt:     now,
		}); err != nil {
			return o, err
		}
	}
	if err := e.Repo.InsertActivity(ctx, tx, domain.OrderActivity{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		Kind:      "order.created",
		ActorID:   opts.ActorID,
		CreatedAt: now,
	}); err != nil {
		return o, err
	}
	if err := e.Audit.Append(ctx, tx, "order.created", o.OwnerID, "order", o.ID, opts.ActorID, audit.Metadata{
		"vendor":  o.VendorName,
		"service": o.ServiceName,
		"status":  o.Status,
	}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	e.InvalidateDashboards(o.OwnerID)
	return o, nil
}

type OrderUpdateOptions struct {
	OwnerID         string
	OrderID         string
	Status          *string
	ProgressPercent *int
	Amount          *float64
	DueAt           *string
	ActorID         string
}

func (e Engine) UpdateGigOrder(ctx context.Context, opts OrderUpdateOptions) (domain.GigOrder, error) {
	if opts.Status != nil && !validOrderStatus(*opts.Status) {
		return domain.GigOrder{}, validationf("status", "must be one of %v", orderStatuses)
	}
	if opts.ProgressPercent != nil && (*opts.ProgressPercent < 0 || *opts.ProgressPercent > 100) {
		return domain.GigOrder{}, validationf("progress_percent", "must be between 0 and 100")
	}
	if opts.Amount != nil && *opts.Amount < 0 {
		return domain.GigOrder{}, validationf("amount", "must not be negative")
	}
	if opts.DueAt != nil && *opts.DueAt != "" {
		if _, ok := parseTime(*opts.DueAt); !ok {
			return domain.GigOrder{}, validationf("due_at", "invalid timestamp %q", *opts.DueAt)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GigOrder{}, err
	}
	defer tx.Rollback()
	current, err := e.Repo.GetOrderTx(ctx, tx, opts.OwnerID, opts.OrderID)
	if err != nil {
		return domain.GigOrder{}, err
	}
	now := e.nowRFC3339()
	update := repo.OrderUpdate{
		Status:          opts.Status,
		ProgressPercent: opts.ProgressPercent,
		Amount:          opts.Amount,
		DueAt:           opts.DueAt,
	}
	if err := e.Repo.UpdateOrder(ctx, tx, opts.OwnerID, opts.OrderID, update, now); err != nil {
		return domain.GigOrder{}, err
	}
	statusChanged := opts.Status != nil && *opts.Status != current.Status
	if statusChanged {
		if err := e.Repo.InsertActivity(ctx, tx, domain.OrderActivity{
			ID:        uuid.New().String(),
			OrderID:   opts.OrderID,
			Kind:      "status.changed",
			Note:      current.Status + " -> " + *opts.Status,
			ActorID:   opts.ActorID,
			CreatedAt: now,
		}); err != nil {
			return domain.GigOrder{}, err
		}
	}
	if err := e.Audit.Append(ctx, tx, "order.updated", opts.OwnerID, "order", opts.OrderID, opts.ActorID, audit.Metadata{
		"from_status": current.Status,
	}); err != nil {
		return domain.GigOrder{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GigOrder{}, err
	}

	if statusChanged && domain.OrderStatusClosed(*opts.Status) {
		if _, err := e.ResolveOrderEscalations(ctx, ResolveEscalationOptions{
			OwnerID:      opts.OwnerID,
			OrderID:      opts.OrderID,
			ResolvedByID: opts.ActorID,
			Resolution:   "order " + *opts.Status,
		}); err != nil {
			return domain.GigOrder{}, err
		}
	}
	e.InvalidateDashboards(opts.OwnerID)
	return e.Repo.GetOrder(ctx, opts.OwnerID, opts.OrderID)
}

func (e Engine) DeleteOrder(ctx context.Context, ownerID, orderID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteOrder(ctx, tx, ownerID, orderID); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, "order.deleted", ownerID, "order", orderID, actorID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if _, err := e.ResolveOrderEscalations(ctx, ResolveEscalationOptions{
		OwnerID:      ownerID,
		OrderID:      orderID,
		ResolvedByID: actorID,
		Resolution:   "order deleted",
	}); err != nil {
		return err
	}
	e.InvalidateDashboards(ownerID)
	return nil
}

type EscrowCreateOptions struct {
	OwnerID string
	OrderID string
	Label   string
	Amount  float64
	ActorID string
}

func (e Engine) PostEscrowCheckpoint(ctx context.Context, opts EscrowCreateOptions) (domain.EscrowCheckpoint, error) {
	if opts.Label == "" {
		return domain.EscrowCheckpoint{}, validationf("label", "required")
	}
	if opts.Amount <= 0 {
		return domain.EscrowCheckpoint{}, validationf("amount", "must be positive")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.EscrowCheckpoint{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetOrderTx(ctx, tx, opts.OwnerID, opts.OrderID); err != nil {
		return domain.EscrowCheckpoint{}, err
	}
	now := e.nowRFC3339()
	c := domain.EscrowCheckpoint{
		ID:        uuid.New().String(),
		OrderID:   opts.OrderID,
		Label:     opts.Label,
		Amount:    opts.Amount,
		Status:    "held",
		CreatedAt: now,
	}
	if err := e.Repo.InsertEscrowCheckpoint(ctx, tx, c); err != nil {
		return c, err
	}
	if err := e.Repo.InsertActivity(ctx, tx, domain.OrderActivity{
		ID:        uuid.New().String(),
		OrderID:   opts.OrderID,
		Kind:      "escrow.held",
		Note:      opts.Label,
		ActorID:   opts.ActorID,
		CreatedAt: now,
	}); err != nil {
		return c, err
	}
	if err := e.Audit.Append(ctx, tx, "escrow.held", opts.OwnerID, "order", opts.OrderID, opts.ActorID, audit.Metadata{
		"checkpoint_id": c.ID,
		"amount":        c.Amount,
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	e.InvalidateDashboards(opts.OwnerID)
	return c, nil
}

// ReleaseEscrowCheckpoint releases a held checkpoint. Re-releasing or
// releasing a checkpoint with no positive balance is a conflict.
func (e Engine) ReleaseEscrowCheckpoint(ctx context.Context, ownerID, orderID, checkpointID, actorID string) (domain.EscrowCheckpoint, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.EscrowCheckpoint{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetOrderTx(ctx, tx, ownerID, orderID); err != nil {
		return domain.EscrowCheckpoint{}, err
	}
	c, err := e.Repo.GetEscrowCheckpointTx(ctx, tx, orderID, checkpointID)
	if err != nil {
		return domain.EscrowCheckpoint{}, err
	}
	if c.Status != "held" {
		return c, ConflictError{Reason: "escrow checkpoint already released"}
	}
	if c.Amount <= 0 {
		return c, ConflictError{Reason: "escrow release amount must be positive"}
	}
	now := e.nowRFC3339()
	if err := e.Repo.ReleaseEscrowCheckpoint(ctx, tx, c.ID, now); err != nil {
		return c, err
	}
	if err := e.Repo.InsertActivity(ctx, tx, domain.OrderActivity{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Kind:      "escrow.released",
		Note:      c.Label,
		ActorID:   actorID,
		CreatedAt: now,
	}); err != nil {
		return c, err
	}
	if err := e.Audit.Append(ctx, tx, "escrow.released", ownerID, "order", orderID, actorID, audit.Metadata{
		"checkpoint_id": c.ID,
		"amount":        c.Amount,
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	c.Status = "released"
	c.ReleasedAt = &now
	e.InvalidateDashboards(ownerID)
	return c, nil
}

func (e Engine) AddOrderMessage(ctx context.Context, ownerID, orderID, authorID, body string) (domain.OrderMessage, error) {
	if body == "" {
		return domain.OrderMessage{}, validationf("body", "required")
	}
	if _, err := e.Repo.GetOrder(ctx, ownerID, orderID); err != nil {
		return domain.OrderMessage{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OrderMessage{}, err
	}
	defer tx.Rollback()
	m := domain.OrderMessage{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertMessage(ctx, tx, m); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

func (e Engine) RateOrder(ctx context.Context, ownerID, orderID string, in ScorecardInput, actorID string) (domain.OrderScorecard, error) {
	for _, score := range []struct {
		field string
		value float64
	}{{"quality", in.Quality}, {"communication", in.Communication}, {"timeliness", in.Timeliness}} {
		if score.value < 0 || score.value > 5 {
			return domain.OrderScorecard{}, validationf("scorecard."+score.field, "must be between 0 and 5")
		}
	}
	if _, err := e.Repo.GetOrder(ctx, ownerID, orderID); err != nil {
		return domain.OrderScorecard{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OrderScorecard{}, err
	}
	defer tx.Rollback()
	sc := domain.OrderScorecard{
		OrderID:       orderID,
		Quality:       in.Quality,
		Communication: in.Communication,
		Timeliness:    in.Timeliness,
		Comment:       in.Comment,
		CreatedAt:     e.nowRFC3339(),
	}
	if err := e.Repo.UpsertScorecard(ctx, tx, sc); err != nil {
		return sc, err
	}
	if err := e.Audit.Append(ctx, tx, "order.rated", ownerID, "order", orderID, actorID, audit.Metadata{
		"quality": in.Quality,
	}); err != nil {
		return sc, err
	}
	return sc, tx.Commit()
}

// AddOrderActivity appends a timeline entry and invalidates the owner's
// dashboards.
func (e Engine) AddOrderActivity(ctx context.Context, ownerID, orderID, kind, note, actorID string) (domain.OrderActivity, error) {
	if kind == "" {
		return domain.OrderActivity{}, validationf("kind", "required")
	}
	if _, err := e.Repo.GetOrder(ctx, ownerID, orderID); err != nil {
		return domain.OrderActivity{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OrderActivity{}, err
	}
	defer tx.Rollback()
	a := domain.OrderActivity{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Kind:      kind,
		Note:      note,
		ActorID:   actorID,
		CreatedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertActivity(ctx, tx, a); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.InvalidateDashboards(ownerID)
	return a, nil
}

// GetOrderDetail assembles an order with its child collections.
type OrderDetail struct {
	Order        domain.GigOrder           `json:"order"`
	Requirements []domain.OrderRequirement `json:"requirements,omitempty"`
	Scorecard    *domain.OrderScorecard    `json:"scorecard,omitempty"`
	Escrow       []domain.EscrowCheckpoint `json:"escrow,omitempty"`
	Activities   []domain.OrderActivity    `json:"activities,omitempty"`
	Messages     []domain.OrderMessage     `json:"messages,omitempty"`
}

func (e Engine) GetOrderDetail(ctx context.Context, ownerID, orderID string) (OrderDetail, error) {
	o, err := e.Repo.GetOrder(ctx, ownerID, orderID)
	if err != nil {
		return OrderDetail{}, err
	}
	detail := OrderDetail{Order: o}
	if detail.Requirements, err = e.Repo.ListRequirements(ctx, orderID); err != nil {
		return detail, err
	}
	sc, err := e.Repo.GetScorecard(ctx, orderID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return detail, err
	}
	if err == nil {
		detail.Scorecard = &sc
	}
	if detail.Escrow, err = e.Repo.ListEscrowCheckpoints(ctx, orderID); err != nil {
		return detail, err
	}
	if detail.Activities, err = e.Repo.ListActivities(ctx, orderID, 0); err != nil {
		return detail, err
	}
	if detail.Messages, err = e.Repo.ListMessages(ctx, orderID, 0); err != nil {
		return detail, err
	}
	return detail, nil
}
