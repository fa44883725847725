// Package guard throttles mutating requests per actor and records refused
// access to the audit log.
package guard

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/muzzaleeni/qwazi/internal/domain"
	"github.com/muzzaleeni/qwazi/internal/metrics"
	"github.com/muzzaleeni/qwazi/internal/store"
)

// Config holds the per-actor mutation rate and the per-address cap on
// persisted denials.
type Config struct {
	RateLimitPerMinute int
	Burst              int
	DenialsPerMinute   int
	DenialBurst        int
}

// Guard enforces a token bucket per actor.
type Guard struct {
	DB        *sql.DB
	AuditRepo *store.AuditRepo
	Config    Config

	log zerolog.Logger
	now func() time.Time

	actors  *buckets
	denials *buckets
}

// NewGuard creates a Guard. A nil db disables audit persistence.
func NewGuard(db *sql.DB, log zerolog.Logger, cfg Config) *Guard {
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.DenialsPerMinute <= 0 {
		cfg.DenialsPerMinute = 30
	}
	if cfg.DenialBurst <= 0 {
		cfg.DenialBurst = 10
	}
	return &Guard{
		DB:        db,
		AuditRepo: &store.AuditRepo{},
		Config:    cfg,
		log:       log.With().Str("component", "guard").Logger(),
		now:       time.Now,
		actors:    newBuckets(cfg.RateLimitPerMinute, cfg.Burst),
		denials:   newBuckets(cfg.DenialsPerMinute, cfg.DenialBurst),
	}
}

// CheckRateLimit takes one token from actor's bucket. When the bucket is
// empty it records the refusal and returns ErrRateLimitExceeded.
func (g *Guard) CheckRateLimit(ctx context.Context, actor, action, caseID string) error {
	if g.actors.allow(actor, g.now()) {
		return nil
	}
	g.record(ctx, domain.AccessRecord{
		Actor:    actor,
		Action:   action,
		CaseID:   caseID,
		Outcome:  domain.AccessRateLimited,
		Detail:   "mutation rate exceeded",
		Severity: "warning",
	})
	metrics.RecordDenial(string(domain.AccessRateLimited))
	return domain.ErrRateLimitExceeded
}

// Denied records a request from remote refused before an actor could be
// established. Past the per-address denial rate the refusal is only
// counted, so an anonymous flood cannot grow the audit table.
func (g *Guard) Denied(ctx context.Context, remote, action, detail string) {
	if !g.denials.allow(remote, g.now()) {
		metrics.RecordDenial(string(domain.AccessDenied))
		g.log.Debug().Str("remote", remote).Str("action", action).Msg("denial not persisted")
		return
	}
	g.record(ctx, domain.AccessRecord{
		Actor:    "anonymous",
		Action:   action,
		Outcome:  domain.AccessDenied,
		Detail:   remote + ": " + detail,
		Severity: "warning",
	})
	metrics.RecordDenial(string(domain.AccessDenied))
}

// Recent returns the newest audit records.
func (g *Guard) Recent(ctx context.Context, limit int) ([]domain.AccessRecord, error) {
	if g.DB == nil {
		return []domain.AccessRecord{}, nil
	}
	recs, err := g.AuditRepo.ListRecent(ctx, g.DB, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreQuery, err)
	}
	return recs, nil
}

// record persists rec. Audit failures are logged and never block the
// response.
func (g *Guard) record(ctx context.Context, rec domain.AccessRecord) {
	rec.ID = uuid.NewString()
	rec.CreatedAt = g.now().UTC()

	g.log.Warn().
		Str("actor", rec.Actor).
		Str("action", rec.Action).
		Str("case_id", rec.CaseID).
		Str("outcome", string(rec.Outcome)).
		Msg(rec.Detail)

	if g.DB == nil {
		return
	}
	if err := g.AuditRepo.Record(ctx, g.DB, rec); err != nil {
		g.log.Error().Err(err).Str("actor", rec.Actor).Msg("audit record failed")
	}
}
