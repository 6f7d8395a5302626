// Package oracle maintains the attested per-chain supply view. Updates
// require a threshold of registered signer votes; periodic reconciliation
// compares the aggregate against the expected supply and pauses the
// transfer components when the drift exceeds tolerance.
package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spantoken/bridge-hub/internal/metrics"
	apperrors "github.com/spantoken/bridge-hub/pkg/app/errors"
	"github.com/spantoken/bridge-hub/pkg/bridge"
)

// Pausable is implemented by the router and the adapters; the oracle
// pauses them when it detects a supply mismatch.
type Pausable interface {
	Pause() error
}

// Store journals applied supply updates. May be nil.
type Store interface {
	SaveChainSupply(ctx context.Context, supply *bridge.ChainSupply) error
}

// Config holds the oracle's thresholds and timing windows.
type Config struct {
	// RequiredSignatures is the vote threshold for applying an update.
	RequiredSignatures int
	// ToleranceThreshold bounds the acceptable reconciliation drift.
	ToleranceThreshold decimal.Decimal
	// ExpectedSupply is the invariant total the bridge should circulate.
	ExpectedSupply decimal.Decimal
	// ValidityPeriod bounds how old a proposal nonce may be.
	ValidityPeriod time.Duration
	// ClockSkewTolerance bounds how far in the future a nonce may be.
	ClockSkewTolerance time.Duration
	// ReconciliationInterval spaces update-triggered reconciliations.
	ReconciliationInterval time.Duration
}

// SupplyMismatch describes one reconciliation failure.
type SupplyMismatch struct {
	Reported decimal.Decimal
	Expected decimal.Decimal
	Drift    decimal.Decimal
	At       time.Time
}

type voteBatch struct {
	chainID   bridge.ChainID
	total     decimal.Decimal
	locked    decimal.Decimal
	nonce     uint64
	signers   map[common.Address]bool
	createdAt time.Time
}

type namedPausable struct {
	name string
	p    Pausable
}

// Oracle is the supply-integrity component. A single mutex serializes
// vote accumulation and threshold application; the transfer path never
// takes this lock.
type Oracle struct {
	cfg    Config
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu            sync.Mutex
	supplies      map[bridge.ChainID]*bridge.ChainSupply
	signers       map[common.Address]bool
	pending       map[common.Hash]*voteBatch
	usedNonces    map[usedNonceKey]time.Time
	pausables     []namedPausable
	emergency     bool
	lastReconcile time.Time

	mismatchCh chan SupplyMismatch

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// usedNonceKey scopes consumed nonces per chain: nonces are unix seconds,
// so independent chains routinely report under the same value.
type usedNonceKey struct {
	chain bridge.ChainID
	nonce uint64
}

// New creates an oracle. store may be nil.
func New(cfg Config, store Store, logger *zap.Logger) *Oracle {
	return &Oracle{
		cfg:        cfg,
		store:      store,
		logger:     logger.Named("oracle"),
		now:        time.Now,
		supplies:   make(map[bridge.ChainID]*bridge.ChainSupply),
		signers:    make(map[common.Address]bool),
		pending:    make(map[common.Hash]*voteBatch),
		usedNonces: make(map[usedNonceKey]time.Time),
		// Update-triggered reconciliation waits a full interval from
		// construction instead of firing on the first applied update.
		lastReconcile: time.Now(),
		mismatchCh:    make(chan SupplyMismatch, 1),
		stopCh:        make(chan struct{}),
	}
}

// RegisterChain adds a chain to the supply view.
func (o *Oracle) RegisterChain(chainID bridge.ChainID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.supplies[chainID]; !ok {
		o.supplies[chainID] = &bridge.ChainSupply{ChainID: chainID}
	}
}

// RegisterSigner adds an address to the signer set.
func (o *Oracle) RegisterSigner(addr common.Address) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.signers[addr] = true
}

// RegisterPausable subscribes a component to mismatch-triggered pausing.
func (o *Oracle) RegisterPausable(name string, p Pausable) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pausables = append(o.pausables, namedPausable{name: name, p: p})
}

// Mismatches exposes the mismatch signal for the service main.
func (o *Oracle) Mismatches() <-chan SupplyMismatch {
	return o.mismatchCh
}

// ProposeUpdate casts one signer's vote for a supply update. The update
// is applied atomically once RequiredSignatures distinct signers have
// voted for the identical values.
func (o *Oracle) ProposeUpdate(ctx context.Context, chainID bridge.ChainID, total, locked decimal.Decimal, nonce uint64, signer common.Address, signature []byte) error {
	if total.IsNegative() || locked.IsNegative() {
		return apperrors.Validation(nil, "supply values must be non-negative")
	}
	if locked.GreaterThan(total) {
		return apperrors.Validation(nil, fmt.Sprintf("locked supply %s exceeds total %s", locked, total))
	}

	now := o.now()
	proposed := time.Unix(int64(nonce), 0)
	if proposed.Before(now.Add(-o.cfg.ValidityPeriod)) {
		return apperrors.Validation(nil, fmt.Sprintf("nonce %d is older than the validity period", nonce))
	}
	if proposed.After(now.Add(o.cfg.ClockSkewTolerance)) {
		return apperrors.Validation(nil, fmt.Sprintf("nonce %d is too far in the future", nonce))
	}

	hash := UpdateHash(chainID, total, locked, nonce)
	recovered, err := recoverSigner(hash, signature)
	if err != nil {
		return apperrors.Authorization(err, "signature does not recover")
	}
	if recovered != signer {
		return apperrors.Authorization(nil, fmt.Sprintf("signature recovers to %s, not %s", recovered.Hex(), signer.Hex()))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.signers[signer] {
		return apperrors.Authorization(nil, fmt.Sprintf("%s is not a registered signer", signer.Hex()))
	}
	if _, ok := o.supplies[chainID]; !ok {
		return apperrors.Configuration(nil, fmt.Sprintf("chain %d is not registered", chainID))
	}

	o.gcLocked(now)

	if _, used := o.usedNonces[usedNonceKey{chain: chainID, nonce: nonce}]; used {
		return apperrors.Replay(nil, fmt.Sprintf("nonce %d already consumed for chain %d", nonce, chainID))
	}

	batch, ok := o.pending[hash]
	if !ok {
		batch = &voteBatch{
			chainID:   chainID,
			total:     total,
			locked:    locked,
			nonce:     nonce,
			signers:   make(map[common.Address]bool),
			createdAt: now,
		}
		o.pending[hash] = batch
	}
	if batch.signers[signer] {
		return apperrors.Replay(nil, fmt.Sprintf("signer %s already voted for this update", signer.Hex()))
	}
	batch.signers[signer] = true
	metrics.OracleVotes.WithLabelValues(chainID.String()).Inc()

	o.logger.Debug("Supply vote accepted",
		zap.Uint64("chain", uint64(chainID)),
		zap.String("signer", signer.Hex()),
		zap.Int("votes", len(batch.signers)),
		zap.Int("required", o.cfg.RequiredSignatures))

	if len(batch.signers) < o.cfg.RequiredSignatures {
		return nil
	}

	// Threshold reached: apply, consume the nonce and drop the batch in
	// one step under the lock.
	o.applyLocked(ctx, batch, now)
	delete(o.pending, hash)
	o.usedNonces[usedNonceKey{chain: batch.chainID, nonce: nonce}] = now

	if o.cfg.ReconciliationInterval > 0 && now.Sub(o.lastReconcile) >= o.cfg.ReconciliationInterval {
		o.reconcileLocked(now)
	}
	return nil
}

func (o *Oracle) applyLocked(ctx context.Context, batch *voteBatch, now time.Time) {
	supply := o.supplies[batch.chainID]
	supply.TotalSupply = batch.total
	supply.LockedSupply = batch.locked
	supply.CirculatingSupply = batch.total.Sub(batch.locked)
	supply.LastUpdateTime = now
	supply.UpdateCount++

	metrics.OracleUpdatesApplied.WithLabelValues(batch.chainID.String()).Inc()
	circulating, _ := supply.CirculatingSupply.Float64()
	metrics.ChainSupply.WithLabelValues(batch.chainID.String()).Set(circulating)

	if o.store != nil {
		snapshot := *supply
		if err := o.store.SaveChainSupply(ctx, &snapshot); err != nil {
			o.logger.Warn("Failed to journal chain supply",
				zap.Uint64("chain", uint64(batch.chainID)),
				zap.Error(err))
		}
	}

	o.logger.Info("Supply update applied",
		zap.Uint64("chain", uint64(batch.chainID)),
		zap.String("total", batch.total.String()),
		zap.String("locked", batch.locked.String()),
		zap.Uint64("update_count", supply.UpdateCount))
}

// gcLocked drops vote batches and consumed nonces older than the
// validity window. Called with the oracle lock held.
func (o *Oracle) gcLocked(now time.Time) {
	retention := o.cfg.ValidityPeriod + o.cfg.ClockSkewTolerance
	for hash, batch := range o.pending {
		if now.Sub(batch.createdAt) > retention {
			delete(o.pending, hash)
		}
	}
	for key, usedAt := range o.usedNonces {
		if now.Sub(usedAt) > retention {
			delete(o.usedNonces, key)
		}
	}
}

// GetChainSupply returns a copy of one chain's attested supply.
func (o *Oracle) GetChainSupply(chainID bridge.ChainID) (bridge.ChainSupply, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	supply, ok := o.supplies[chainID]
	if !ok {
		return bridge.ChainSupply{}, apperrors.Configuration(nil, fmt.Sprintf("chain %d is not registered", chainID))
	}
	return *supply, nil
}

// Supplies returns a snapshot of every registered chain's supply.
func (o *Oracle) Supplies() []bridge.ChainSupply {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]bridge.ChainSupply, 0, len(o.supplies))
	for _, s := range o.supplies {
		out = append(out, *s)
	}
	return out
}

// RestoreSupplies reloads journaled supply records, typically at startup.
func (o *Oracle) RestoreSupplies(supplies []bridge.ChainSupply) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range supplies {
		s := supplies[i]
		o.supplies[s.ChainID] = &s
	}
}

// Reconcile checks the aggregate circulating supply against the expected
// total. On drift beyond tolerance it pauses every registered component
// (best-effort) and returns a Consistency error.
func (o *Oracle) Reconcile() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reconcileLocked(o.now())
}

func (o *Oracle) reconcileLocked(now time.Time) error {
	o.lastReconcile = now

	sumTotal := decimal.Zero
	sumLocked := decimal.Zero
	for _, s := range o.supplies {
		sumTotal = sumTotal.Add(s.TotalSupply)
		sumLocked = sumLocked.Add(s.LockedSupply)
	}
	reported := sumTotal.Sub(sumLocked)
	drift := reported.Sub(o.cfg.ExpectedSupply).Abs()

	driftF, _ := drift.Float64()
	metrics.SupplyDrift.Set(driftF)

	if drift.LessThanOrEqual(o.cfg.ToleranceThreshold) {
		metrics.ReconciliationsTotal.WithLabelValues("ok").Inc()
		o.logger.Debug("Supply reconciled",
			zap.String("reported", reported.String()),
			zap.String("drift", drift.String()))
		return nil
	}

	metrics.ReconciliationsTotal.WithLabelValues("mismatch").Inc()
	o.logger.Error("Supply mismatch detected",
		zap.String("reported", reported.String()),
		zap.String("expected", o.cfg.ExpectedSupply.String()),
		zap.String("drift", drift.String()),
		zap.Bool("emergency_mode", o.emergency))

	// Emergency mode suppresses automatic re-pausing so operators can
	// bring components back while the investigation is open.
	if !o.emergency {
		for _, np := range o.pausables {
			if err := np.p.Pause(); err != nil {
				o.logger.Error("Failed to pause component",
					zap.String("component", np.name),
					zap.Error(err))
			}
		}
	}

	mismatch := SupplyMismatch{Reported: reported, Expected: o.cfg.ExpectedSupply, Drift: drift, At: now}
	select {
	case o.mismatchCh <- mismatch:
	default:
	}

	return apperrors.Consistency(nil,
		fmt.Sprintf("supply mismatch: reported %s, expected %s", reported, o.cfg.ExpectedSupply))
}

// ActivateEmergencyMode stops mismatch-triggered pausing.
func (o *Oracle) ActivateEmergencyMode() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emergency = true
	o.logger.Warn("Emergency mode activated")
}

// DeactivateEmergencyMode restores mismatch-triggered pausing.
func (o *Oracle) DeactivateEmergencyMode() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emergency = false
	o.logger.Info("Emergency mode deactivated")
}

// EmergencyMode reports the flag.
func (o *Oracle) EmergencyMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.emergency
}

// StartPeriodicReconciliation runs Reconcile on a fixed interval until
// Stop is called. Reconciliation runs off the transfer path, so a slow
// run never blocks dispatches or inbound deliveries.
func (o *Oracle) StartPeriodicReconciliation(interval time.Duration) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		o.logger.Info("Periodic reconciliation started", zap.Duration("interval", interval))
		for {
			select {
			case <-o.stopCh:
				o.logger.Info("Periodic reconciliation stopped")
				return
			case <-ticker.C:
				if err := o.Reconcile(); err != nil {
					o.logger.Error("Reconciliation failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop terminates the background loop and waits for it to exit. Safe to
// call more than once.
func (o *Oracle) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}
