package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"gigline/internal/audit"
	"gigline/internal/domain"
	"gigline/internal/repo"
)

// SLAAlert is one reported breach, derived fresh on every detection run.
type SLAAlert struct {
	OrderID      string  `json:"order_id"`
	VendorName   string  `json:"vendor_name"`
	ServiceName  string  `json:"service_name"`
	Severity     string  `json:"severity" enum:"warning,critical"`
	Message      string  `json:"message"`
	HoursOverdue int     `json:"hours_overdue"`
	DueAt        string  `json:"due_at" format:"date-time"`
	EscalationID *string `json:"escalation_id,omitempty"`
	Status       string  `json:"status,omitempty"`
}

type DetectOptions struct {
	OwnerID string
	// Escalate controls persistence. Read-only callers (no order-management
	// permission) still see breaches in the response but nothing is written.
	Escalate bool
}

// DetectSLABreaches scans orders for due-date breaches. Existing open
// escalations seed the result so repeated runs are idempotent: a breach is
// persisted only when Escalate is set and the row is new or its
// severity/message/hours changed.
func (e Engine) DetectSLABreaches(ctx context.Context, orders []domain.GigOrder, opts DetectOptions) ([]SLAAlert, int, error) {
	now := e.now().UTC()
	var breached []domain.GigOrder
	for _, o := range orders {
		if o.DueAt == nil || domain.OrderStatusClosed(o.Status) {
			continue
		}
		due, ok := parseTime(*o.DueAt)
		if !ok || !due.Before(now) {
			continue
		}
		breached = append(breached, o)
	}
	if len(breached) == 0 {
		return nil, 0, nil
	}

	ids := make([]string, len(breached))
	for i, o := range breached {
		ids[i] = o.ID
	}
	existing, err := e.Repo.OpenEscalations(ctx, opts.OwnerID, ids)
	if err != nil {
		return nil, 0, err
	}
	open := map[string]domain.OrderEscalation{}
	for _, esc := range existing {
		open[esc.OrderID] = esc
	}

	alerts := make([]SLAAlert, 0, len(breached))
	for _, o := range breached {
		due, _ := parseTime(*o.DueAt)
		hours := hoursOverdue(now, due, e.Config.SLA.MinHoursOverdue)
		severity := "warning"
		if hours >= e.Config.SLA.CriticalHours {
			severity = "critical"
		}
		message := fmt.Sprintf("order %s (%s) from %s is %dh past due", o.ID, o.ServiceName, o.VendorName, hours)
		alert := SLAAlert{
			OrderID:      o.ID,
			VendorName:   o.VendorName,
			ServiceName:  o.ServiceName,
			Severity:     severity,
			Message:      message,
			HoursOverdue: hours,
			DueAt:        due.Format(time.RFC3339),
		}
		if opts.Escalate {
			esc, err := e.persistEscalation(ctx, opts.OwnerID, o, open[o.ID], severity, message, hours)
			if err != nil {
				return nil, 0, err
			}
			alert.EscalationID = optionalString(esc.ID)
			alert.Status = esc.Status
			e.Cache.SetJSON(escalationCacheKey(opts.OwnerID, o.ID), esc, e.Config.EscalationTTL())
		} else if esc, ok := open[o.ID]; ok {
			alert.EscalationID = optionalString(esc.ID)
			alert.Status = esc.Status
		}
		alerts = append(alerts, alert)
	}
	return alerts, len(alerts), nil
}

// persistEscalation upserts the single open escalation for (owner, order):
// a fresh breach inserts a queued row, an unchanged one is left alone, a
// changed one is refreshed in place.
func (e Engine) persistEscalation(ctx context.Context, ownerID string, o domain.GigOrder, existing domain.OrderEscalation, severity, message string, hours int) (domain.OrderEscalation, error) {
	nowStr := e.nowRFC3339()
	if existing.ID != "" {
		if existing.Severity == severity && existing.Message == message && existing.HoursOverdue == hours {
			return existing, nil
		}
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return existing, err
		}
		defer tx.Rollback()
		if err := e.Repo.RefreshEscalation(ctx, tx, existing.ID, severity, message, hours, nowStr); err != nil {
			return existing, err
		}
		if err := e.Audit.Append(ctx, tx, "escalation.refreshed", ownerID, "order", o.ID, "sla-detector", audit.Metadata{
			"escalation_id": existing.ID,
			"severity":      severity,
			"hours_overdue": hours,
		}); err != nil {
			return existing, err
		}
		if err := tx.Commit(); err != nil {
			return existing, err
		}
		existing.Severity = severity
		existing.Message = message
		existing.HoursOverdue = hours
		existing.LastDetectedAt = nowStr
		return existing, nil
	}

	esc := domain.OrderEscalation{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		OrderID:        o.ID,
		Status:         "queued",
		Severity:       severity,
		Message:        message,
		HoursOverdue:   hours,
		DueAt:          o.DueAt,
		DetectedAt:     nowStr,
		LastDetectedAt: nowStr,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return esc, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEscalation(ctx, tx, esc); err != nil {
		return esc, err
	}
	if err := e.Audit.Append(ctx, tx, "escalation.queued", ownerID, "order", o.ID, "sla-detector", audit.Metadata{
		"escalation_id": esc.ID,
		"severity":      severity,
		"hours_overdue": hours,
	}); err != nil {
		return esc, err
	}
	if err := tx.Commit(); err != nil {
		return esc, err
	}
	return esc, nil
}

type ResolveEscalationOptions struct {
	OwnerID      string
	OrderID      string
	ResolvedByID string
	Resolution   string
}

// ResolveOrderEscalations closes every open escalation for the order and
// drops the per-order cache entry. Invoked when an order reaches a closed
// status or is deleted, and available as a standalone operation.
func (e Engine) ResolveOrderEscalations(ctx context.Context, opts ResolveEscalationOptions) (int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	n, err := e.Repo.ResolveEscalations(ctx, tx, opts.OwnerID, opts.OrderID, opts.ResolvedByID, opts.Resolution, e.nowRFC3339())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := e.Audit.Append(ctx, tx, "escalation.resolved", opts.OwnerID, "order", opts.OrderID, opts.ResolvedByID, audit.Metadata{
			"resolved":   n,
			"resolution": opts.Resolution,
		}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	e.Cache.Delete(escalationCacheKey(opts.OwnerID, opts.OrderID))
	return n, nil
}

// OpenOrderEscalation returns the open escalation for one order, serving
// from the per-order cache when warm. The database row stays authoritative.
func (e Engine) OpenOrderEscalation(ctx context.Context, ownerID, orderID string) (domain.OrderEscalation, error) {
	var cached domain.OrderEscalation
	if e.Cache.GetJSON(escalationCacheKey(ownerID, orderID), &cached) && cached.Open() {
		return cached, nil
	}
	list, err := e.Repo.OpenEscalations(ctx, ownerID, []string{orderID})
	if err != nil {
		return domain.OrderEscalation{}, err
	}
	if len(list) == 0 {
		return domain.OrderEscalation{}, repo.ErrNotFound
	}
	return list[0], nil
}

func (e Engine) ListEscalations(ctx context.Context, f repo.EscalationFilters) ([]domain.OrderEscalation, error) {
	return e.Repo.ListEscalations(ctx, f)
}

func hoursOverdue(now, due time.Time, min int) int {
	hours := int(math.Ceil(now.Sub(due).Hours()))
	if hours < min {
		hours = min
	}
	return hours
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
