// Package ratelimit enforces per-account and global sliding-window quotas
// for every mint, burn and bridge action.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spantoken/bridge-hub/internal/metrics"
	apperrors "github.com/spantoken/bridge-hub/pkg/app/errors"
	"github.com/spantoken/bridge-hub/pkg/bridge"
)

// bpsDenominator scales tier multipliers expressed in basis points.
const bpsDenominator = 10000

var (
	// ErrRateLimitExceeded is returned when a window's token quota is exhausted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrTxCountExceeded is returned when a window's transaction count is exhausted.
	ErrTxCountExceeded = errors.New("transaction count exceeded")
)

// Directory resolves an account's tier and exemption flag.
type Directory interface {
	Lookup(ctx context.Context, account string) (tier string, exempt bool, err error)
}

// Store journals window state so quotas survive restarts. May be nil.
type Store interface {
	SaveWindow(ctx context.Context, state WindowState) error
}

// Config holds the sliding-window parameters.
type Config struct {
	WindowDuration time.Duration
	BaseMaxTokens  decimal.Decimal
	MaxTxPerWindow int
	// TierMultipliers scale BaseMaxTokens in basis points; a missing tier
	// falls back to 10000 (1x).
	TierMultipliers map[string]int64
	// GlobalMaxTokens and GlobalMaxTx bound the aggregate across all
	// accounts per operation type. Zero disables the respective bound.
	GlobalMaxTokens decimal.Decimal
	GlobalMaxTx     int
}

// WindowState is the persistable shape of one sliding window.
// Account is empty for the global aggregate windows.
type WindowState struct {
	Account     string
	Op          bridge.OpType
	TokensUsed  decimal.Decimal
	TxCount     int
	WindowStart time.Time
}

type window struct {
	mu          sync.Mutex
	tokensUsed  decimal.Decimal
	txCount     int
	windowStart time.Time
}

type accountKey struct {
	account string
	op      bridge.OpType
}

// Limiter implements the sliding-window quota. Check-then-commit runs as
// one atomic unit under the per-key lock, with the global aggregate lock
// always acquired after the per-key lock.
type Limiter struct {
	dir    Directory
	store  Store
	logger *zap.Logger
	now    func() time.Time

	cfgMu sync.RWMutex
	cfg   Config

	mu       sync.Mutex
	accounts map[accountKey]*window
	global   map[bridge.OpType]*window
}

// New creates a Limiter. dir and store may be nil; without a directory
// every account is treated as the standard tier.
func New(cfg Config, dir Directory, store Store, logger *zap.Logger) *Limiter {
	return &Limiter{
		cfg:      cfg,
		dir:      dir,
		store:    store,
		logger:   logger,
		now:      time.Now,
		accounts: make(map[accountKey]*window),
		global:   make(map[bridge.OpType]*window),
	}
}

func (l *Limiter) windows(account string, op bridge.OpType) (*window, *window) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := accountKey{account: account, op: op}
	w, ok := l.accounts[key]
	if !ok {
		w = &window{}
		l.accounts[key] = w
	}
	g, ok := l.global[op]
	if !ok {
		g = &window{}
		l.global[op] = g
	}
	return w, g
}

// Config returns the active window parameters.
func (l *Limiter) Config() Config {
	l.cfgMu.RLock()
	defer l.cfgMu.RUnlock()
	return l.cfg
}

// UpdateConfig replaces the window parameters. Live windows keep their
// accumulated usage; the new bounds apply from the next Reserve.
func (l *Limiter) UpdateConfig(cfg Config) {
	l.cfgMu.Lock()
	defer l.cfgMu.Unlock()
	l.cfg = cfg
	l.logger.Info("Rate limit configuration updated",
		zap.Duration("window", cfg.WindowDuration),
		zap.String("base_max_tokens", cfg.BaseMaxTokens.String()),
		zap.Int("max_tx", cfg.MaxTxPerWindow))
}

func effectiveMax(cfg Config, tier string) decimal.Decimal {
	multiplier := int64(bpsDenominator)
	if m, ok := cfg.TierMultipliers[tier]; ok && m > 0 {
		multiplier = m
	}
	return cfg.BaseMaxTokens.Mul(decimal.NewFromInt(multiplier)).Div(decimal.NewFromInt(bpsDenominator))
}

// fresh reports whether the window has expired at time now.
func (w *window) fresh(now time.Time, duration time.Duration) bool {
	return w.windowStart.IsZero() || !now.Before(w.windowStart.Add(duration))
}

// Reserve atomically checks and commits capacity for one operation.
// It fails with a Capacity error and commits nothing when either the
// per-account window or the global aggregate would overflow.
func (l *Limiter) Reserve(ctx context.Context, account string, op bridge.OpType, amount decimal.Decimal) error {
	tier, exempt, err := l.lookup(ctx, account)
	if err != nil {
		return err
	}
	if exempt {
		return nil
	}

	cfg := l.Config()
	w, g := l.windows(account, op)

	// Lock order per-key then global, held together across check and commit.
	w.mu.Lock()
	defer w.mu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	now := l.now()
	max := effectiveMax(cfg, tier)

	if err := checkWindow(w, now, cfg.WindowDuration, amount, max, cfg.MaxTxPerWindow); err != nil {
		metrics.RateLimitRejections.WithLabelValues(string(op), reason(err)).Inc()
		return apperrors.Capacity(err, fmt.Sprintf("account %s exceeded %s quota", account, op))
	}
	if err := checkWindow(g, now, cfg.WindowDuration, amount, cfg.GlobalMaxTokens, cfg.GlobalMaxTx); err != nil {
		metrics.RateLimitRejections.WithLabelValues(string(op), "global_"+reason(err)).Inc()
		return apperrors.Capacity(err, fmt.Sprintf("global %s quota exhausted", op))
	}

	commitWindow(w, now, cfg.WindowDuration, amount)
	commitWindow(g, now, cfg.WindowDuration, amount)

	l.journal(ctx, account, op, w)
	l.journal(ctx, "", op, g)
	return nil
}

// Release returns previously reserved capacity, used as the compensating
// step when a later stage of the caller's saga fails. Capacity expired
// with its window is not returned.
func (l *Limiter) Release(ctx context.Context, account string, op bridge.OpType, amount decimal.Decimal) {
	_, exempt, err := l.lookup(ctx, account)
	if err != nil || exempt {
		return
	}

	cfg := l.Config()
	w, g := l.windows(account, op)

	w.mu.Lock()
	defer w.mu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	now := l.now()
	releaseWindow(w, now, cfg.WindowDuration, amount)
	releaseWindow(g, now, cfg.WindowDuration, amount)

	l.journal(ctx, account, op, w)
	l.journal(ctx, "", op, g)
}

// Snapshot copies every live window for persistence or inspection.
func (l *Limiter) Snapshot() []WindowState {
	l.mu.Lock()
	defer l.mu.Unlock()

	states := make([]WindowState, 0, len(l.accounts)+len(l.global))
	for key, w := range l.accounts {
		w.mu.Lock()
		states = append(states, WindowState{
			Account: key.account, Op: key.op,
			TokensUsed: w.tokensUsed, TxCount: w.txCount, WindowStart: w.windowStart,
		})
		w.mu.Unlock()
	}
	for op, g := range l.global {
		g.mu.Lock()
		states = append(states, WindowState{
			Op: op, TokensUsed: g.tokensUsed, TxCount: g.txCount, WindowStart: g.windowStart,
		})
		g.mu.Unlock()
	}
	return states
}

// Restore loads persisted window state, typically at startup.
func (l *Limiter) Restore(states []WindowState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range states {
		w := &window{tokensUsed: s.TokensUsed, txCount: s.TxCount, windowStart: s.WindowStart}
		if s.Account == "" {
			l.global[s.Op] = w
			continue
		}
		l.accounts[accountKey{account: s.Account, op: s.Op}] = w
	}
}

func (l *Limiter) lookup(ctx context.Context, account string) (string, bool, error) {
	if l.dir == nil {
		return "standard", false, nil
	}
	tier, exempt, err := l.dir.Lookup(ctx, account)
	if err != nil {
		return "", false, apperrors.Internal(fmt.Errorf("account directory lookup: %w", err))
	}
	return tier, exempt, nil
}

func (l *Limiter) journal(ctx context.Context, account string, op bridge.OpType, w *window) {
	if l.store == nil {
		return
	}
	state := WindowState{Account: account, Op: op, TokensUsed: w.tokensUsed, TxCount: w.txCount, WindowStart: w.windowStart}
	if err := l.store.SaveWindow(ctx, state); err != nil {
		l.logger.Warn("Failed to journal rate window",
			zap.String("account", account),
			zap.String("op", string(op)),
			zap.Error(err))
	}
}

func checkWindow(w *window, now time.Time, duration time.Duration, amount, maxTokens decimal.Decimal, maxTx int) error {
	tokensUsed := w.tokensUsed
	txCount := w.txCount
	if w.fresh(now, duration) {
		tokensUsed = decimal.Zero
		txCount = 0
	}

	if maxTokens.IsPositive() && tokensUsed.Add(amount).GreaterThan(maxTokens) {
		return fmt.Errorf("%w: used %s + %s > %s", ErrRateLimitExceeded, tokensUsed, amount, maxTokens)
	}
	if maxTx > 0 && txCount+1 > maxTx {
		return fmt.Errorf("%w: %d transactions already in window", ErrTxCountExceeded, txCount)
	}
	return nil
}

func commitWindow(w *window, now time.Time, duration time.Duration, amount decimal.Decimal) {
	if w.fresh(now, duration) {
		w.windowStart = now
		w.tokensUsed = decimal.Zero
		w.txCount = 0
	}
	w.tokensUsed = w.tokensUsed.Add(amount)
	w.txCount++
}

func releaseWindow(w *window, now time.Time, duration time.Duration, amount decimal.Decimal) {
	if w.fresh(now, duration) {
		return
	}
	w.tokensUsed = w.tokensUsed.Sub(amount)
	if w.tokensUsed.IsNegative() {
		w.tokensUsed = decimal.Zero
	}
	if w.txCount > 0 {
		w.txCount--
	}
}

func reason(err error) string {
	if errors.Is(err, ErrTxCountExceeded) {
		return "tx_count"
	}
	return "tokens"
}
