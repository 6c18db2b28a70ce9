package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tokcache/internal/providers"
	"tokcache/internal/structures"
)

const (
	OutcomeAllowed  = "allowed"
	OutcomeCooldown = "cooldown"
	OutcomeDisabled = "disabled"
)

// CooldownDecision is Allowed, Denied with Remaining > 0 (cooldown), or
// Denied with Disabled set (kill switch, Remaining is 0).
type CooldownDecision struct {
	Allowed   bool          `json:"allowed"`
	Disabled  bool          `json:"disabled"`
	Remaining time.Duration `json:"-"`
}

func (d CooldownDecision) Outcome() string {
	switch {
	case d.Allowed:
		return OutcomeAllowed
	case d.Disabled:
		return OutcomeDisabled
	default:
		return OutcomeCooldown
	}
}

// RetryIn formats Remaining as MM:SS, rounded up to the next second.
func (d CooldownDecision) RetryIn() string {
	if d.Allowed || d.Disabled {
		return "00:00"
	}
	secs := int((d.Remaining + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

type CooldownGateInterface interface {
	CheckAndReserve(ctx context.Context, ownerID, clockKey string) (CooldownDecision, error)
	Status(ctx context.Context, ownerID, clockKey string) (CooldownDecision, error)
	Window() time.Duration
}

type CooldownGate struct {
	store          FetchStateStore
	logger         providers.Logger
	window         time.Duration
	defaultEnabled bool
	now            func() time.Time
}

func (g *CooldownGate) Window() time.Duration {
	return g.window
}

func (g *CooldownGate) enabled(ctx context.Context, ownerID string) (bool, error) {
	enabled, ok, err := g.store.FetchingEnabled(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("read fetching flag: %w", err)
	}
	if !ok {
		return g.defaultEnabled, nil
	}
	return enabled, nil
}

func (g *CooldownGate) remaining(last, now time.Time) time.Duration {
	r := last.Add(g.window).Sub(now)
	if r > g.window {
		return g.window
	}
	if r <= 0 {
		return min(time.Second, g.window)
	}
	return r
}

// CheckAndReserve decides whether a provider call may start now and, when it
// may, moves the clock to now in the same atomic store operation.
func (g *CooldownGate) CheckAndReserve(ctx context.Context, ownerID, clockKey string) (CooldownDecision, error) {
	ownerID, clockKey = strings.TrimSpace(ownerID), strings.TrimSpace(clockKey)
	if ownerID == "" || clockKey == "" {
		return CooldownDecision{}, ErrEmptyOwnerKey
	}

	enabled, err := g.enabled(ctx, ownerID)
	if err != nil {
		return CooldownDecision{}, err
	}
	if !enabled {
		g.logger.Debugf(providers.TypeSync, "fetch denied for %s on %s: fetching disabled", ownerID, clockKey)
		return CooldownDecision{Disabled: true}, nil
	}

	now := g.now()
	reserved, err := g.store.ReserveFetch(ctx, clockKey, now, now.Add(-g.window))
	if err != nil {
		return CooldownDecision{}, fmt.Errorf("reserve %s: %w", clockKey, err)
	}
	if reserved {
		g.logger.Debugf(providers.TypeSync, "fetch reserved for %s on %s", ownerID, clockKey)
		return CooldownDecision{Allowed: true}, nil
	}

	last, ok, err := g.store.LastFetchAt(ctx, clockKey)
	if err != nil {
		return CooldownDecision{}, fmt.Errorf("read clock %s: %w", clockKey, err)
	}
	remaining := g.window
	if ok {
		remaining = g.remaining(last, now)
	}
	g.logger.Debugf(providers.TypeSync, "fetch denied for %s on %s: cooldown %s", ownerID, clockKey, remaining)
	return CooldownDecision{Remaining: remaining}, nil
}

// Status reports what CheckAndReserve would decide, without reserving.
func (g *CooldownGate) Status(ctx context.Context, ownerID, clockKey string) (CooldownDecision, error) {
	ownerID, clockKey = strings.TrimSpace(ownerID), strings.TrimSpace(clockKey)
	if ownerID == "" || clockKey == "" {
		return CooldownDecision{}, ErrEmptyOwnerKey
	}

	enabled, err := g.enabled(ctx, ownerID)
	if err != nil {
		return CooldownDecision{}, err
	}
	if !enabled {
		return CooldownDecision{Disabled: true}, nil
	}

	last, ok, err := g.store.LastFetchAt(ctx, clockKey)
	if err != nil {
		return CooldownDecision{}, fmt.Errorf("read clock %s: %w", clockKey, err)
	}
	now := g.now()
	if !ok || !last.After(now.Add(-g.window)) {
		return CooldownDecision{Allowed: true}, nil
	}
	return CooldownDecision{Remaining: g.remaining(last, now)}, nil
}

func NewCooldownGate(conf *structures.Config, logger providers.Logger, store FetchStateStore) CooldownGateInterface {
	return &CooldownGate{
		store:          store,
		logger:         logger,
		window:         conf.Sync.CooldownWindow,
		defaultEnabled: conf.Sync.FetchingEnabledByDefault,
		now:            time.Now,
	}
}
