package engine

import (
	"database/sql"
	"fmt"
	"time"

	"gigline/internal/audit"
	"gigline/internal/cache"
	"gigline/internal/config"
	"gigline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Cache  *cache.Cache
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, c *cache.Cache) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if c == nil {
		c = cache.New()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{DB: db, MaxPerEntity: cfg.Audit.MaxEntriesPerEntity},
		Cache:  c,
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func dashboardCacheKey(ownerID, status string) string {
	if status == "" {
		status = "all"
	}
	return fmt.Sprintf("company:orders:dashboard:%s:%s", ownerID, status)
}

func dashboardCachePrefix(ownerID string) string {
	return fmt.Sprintf("company:orders:dashboard:%s:", ownerID)
}

func escalationCacheKey(ownerID, orderID string) string {
	return fmt.Sprintf("company:orders:escalation:%s:%s", ownerID, orderID)
}

// InvalidateDashboards drops every cached dashboard variant for an owner.
// Called after any owner-scoped order, timeline, or escrow mutation so the
// next read reflects it; the extra misses are the cost of simplicity.
func (e Engine) InvalidateDashboards(ownerID string) {
	e.Cache.DeletePrefix(dashboardCachePrefix(ownerID))
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
