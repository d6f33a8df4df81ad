package services

import (
	"context"
	"sync"
	"time"

	"sui-buybot/agent/internal/models"
	"sui-buybot/shared/logger"
)

// BoostPersistence is the storage side of the registry; nil persistence
// keeps boosts in memory only.
type BoostPersistence interface {
	Activate(ctx context.Context, boost *models.Boost) error
	ActiveBoosts(ctx context.Context, now time.Time) ([]models.Boost, error)
}

// BoostRegistry tracks paid promotion windows per token. At most one boost
// is active per token at any instant: activation atomically replaces the
// previous boost, and expiry is evaluated at query time from the stored end
// time rather than by a background sweep.
type BoostRegistry struct {
	store           BoostPersistence
	scoreMultiplier float64
	log             *logger.Logger

	mu     sync.RWMutex
	active map[string]models.Boost

	now func() time.Time
}

func NewBoostRegistry(store BoostPersistence, scoreMultiplier float64, log *logger.Logger) *BoostRegistry {
	if scoreMultiplier <= 0 {
		scoreMultiplier = 1
	}
	return &BoostRegistry{
		store:           store,
		scoreMultiplier: scoreMultiplier,
		log:             log,
		active:          map[string]models.Boost{},
		now:             time.Now,
	}
}

// Warm loads boosts still running from storage, so a restart does not lose
// paid promotion windows.
func (r *BoostRegistry) Warm(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	boosts, err := r.store.ActiveBoosts(ctx, r.now())
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, boost := range boosts {
		r.active[boost.TokenAddress] = boost
	}
	r.log.Info("Boost registry warmed from storage", "activeBoosts", len(boosts))
	return nil
}

// Activate records a new boost for the token, replacing any boost currently
// active for it. The registry map is the serialization point, so concurrent
// activations for the same token cannot leave two boosts active.
func (r *BoostRegistry) Activate(ctx context.Context, token string, duration time.Duration, paidAmount float64, owner string) (models.Boost, error) {
	now := r.now()
	boost := models.Boost{
		TokenAddress: token,
		StartTime:    now,
		EndTime:      now.Add(duration),
		PaidAmount:   paidAmount,
		Owner:        owner,
		Active:       true,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		if err := r.store.Activate(ctx, &boost); err != nil {
			return models.Boost{}, err
		}
	}
	r.active[token] = boost
	r.log.Info("Boost activated", "token", token,
		"until", boost.EndTime.Format(time.RFC3339), "paidSui", paidAmount)
	return boost, nil
}

// IsBoosted reports whether the token has a boost covering the given
// instant. Pure read, no side effects.
func (r *BoostRegistry) IsBoosted(token string, at time.Time) bool {
	r.mu.RLock()
	boost, ok := r.active[token]
	r.mu.RUnlock()
	return ok && !at.Before(boost.StartTime) && !at.After(boost.EndTime)
}

// IsBoostedNow is IsBoosted at the current time.
func (r *BoostRegistry) IsBoostedNow(token string) bool {
	return r.IsBoosted(token, r.now())
}

// BoostScore returns the leaderboard bonus for the token: paid amount times
// a fixed multiplier while the boost runs, zero otherwise. Derived from the
// stored paid amount, so scores survive restarts unchanged.
func (r *BoostRegistry) BoostScore(token string) float64 {
	now := r.now()
	r.mu.RLock()
	boost, ok := r.active[token]
	r.mu.RUnlock()
	if !ok || now.Before(boost.StartTime) || now.After(boost.EndTime) {
		return 0
	}
	return boost.PaidAmount * r.scoreMultiplier
}

// Status returns the current boost for the token, if one is running.
func (r *BoostRegistry) Status(token string) (models.Boost, bool) {
	now := r.now()
	r.mu.RLock()
	boost, ok := r.active[token]
	r.mu.RUnlock()
	if !ok || now.Before(boost.StartTime) || now.After(boost.EndTime) {
		return models.Boost{}, false
	}
	return boost, true
}
