// Package hub implements app.Runner for the bridge hub process: it wires
// the persistence layer, the token ledger, the rate limiter, the protocol
// adapters, the router and the supply oracle, then serves the HTTP API.
package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/spantoken/bridge-hub/pkg/accounts"
	"github.com/spantoken/bridge-hub/pkg/adapter"
	"github.com/spantoken/bridge-hub/pkg/api"
	apphttp "github.com/spantoken/bridge-hub/pkg/app/http"
	"github.com/spantoken/bridge-hub/pkg/auth"
	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/config"
	"github.com/spantoken/bridge-hub/pkg/db"
	"github.com/spantoken/bridge-hub/pkg/ledger"
	"github.com/spantoken/bridge-hub/pkg/ledger/evm"
	"github.com/spantoken/bridge-hub/pkg/ledger/memory"
	"github.com/spantoken/bridge-hub/pkg/oracle"
	"github.com/spantoken/bridge-hub/pkg/pgutil"
	"github.com/spantoken/bridge-hub/pkg/ratelimit"
	"github.com/spantoken/bridge-hub/pkg/router"
)

// directoryTTL bounds how stale a cached tier lookup may be.
const directoryTTL = time.Minute

// Server holds cfg to init the bridge hub.
type Server struct {
	cfg *config.Config
	// matrixPath optionally overrides the routing matrix derived from the
	// main config.
	matrixPath string
}

// NewServer initializes a new hub server.
func NewServer(cfg *config.Config, matrixPath string) *Server {
	return &Server{cfg: cfg, matrixPath: matrixPath}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("hub config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bridge hub",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("ledger", cfg.Ledger.Backend),
	)

	dbBun, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer dbBun.Close()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	store := db.NewStore(dbBun)

	directory, err := s.setupAccounts(ctx, dbBun, logger)
	if err != nil {
		return err
	}

	lgr, closeLedger, err := s.openLedger(logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	limiter, err := s.setupLimiter(ctx, store, directory.dir, logger)
	if err != nil {
		return err
	}

	adapters, err := s.setupAdapters(ctx, lgr, limiter, store, logger)
	if err != nil {
		return err
	}

	rtr := router.New(lgr, limiter, store, logger)
	if err := s.setupRoutes(rtr, adapters, logger); err != nil {
		return err
	}

	orc, err := s.setupOracle(ctx, store, rtr, adapters, logger)
	if err != nil {
		return err
	}
	// Safety net; the explicit Stop below gives deterministic shutdown order.
	defer orc.Stop()

	validator := auth.NewJWTValidator(cfg.JWKS.URL, cfg.JWKS.Issuer)
	verifier := auth.NewVerifier(validator, logger)

	apiServer := api.NewServer(api.Deps{
		Router:    rtr,
		Adapters:  adapters,
		Oracle:    orc,
		Limiter:   limiter,
		Accounts:  directory.store,
		Directory: directory.dir,
		Verifier:  verifier,
		Logger:    logger,
	})

	stopMetrics := s.serveMetrics(logger)

	err = apphttp.ServeAndWait(ctx, apiServer.Routes(), logger, &cfg.Server)

	// Stop background work before deferred DB/client closes kick in.
	orc.Stop()
	stopMetrics()

	return err
}

type accountDeps struct {
	store accounts.Store
	dir   *accounts.Directory
}

// setupAccounts builds the tier directory and seeds the configured
// exemptions so a fresh database honors rate_limit.exempt_accounts.
func (s *Server) setupAccounts(ctx context.Context, dbBun *bun.DB, logger *zap.Logger) (accountDeps, error) {
	store := accounts.NewStore(dbBun)

	for _, address := range s.cfg.RateLimit.ExemptAccounts {
		err := store.SetExempt(ctx, address, true)
		if errors.Is(err, accounts.ErrAccountNotFound) {
			err = store.Upsert(ctx, &accounts.Account{
				Address: address,
				Tier:    accounts.DefaultTier,
				Exempt:  true,
			})
		}
		if err != nil {
			return accountDeps{}, fmt.Errorf("seed exempt account %s: %w", address, err)
		}
		logger.Info("Seeded exempt account", zap.String("address", address))
	}

	return accountDeps{store: store, dir: accounts.NewDirectory(store, directoryTTL)}, nil
}

func (s *Server) openLedger(logger *zap.Logger) (ledger.Ledger, func(), error) {
	switch s.cfg.Ledger.Backend {
	case "evm":
		l, err := evm.New(&s.cfg.Ledger.EVM, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open evm ledger: %w", err)
		}
		return l, l.Close, nil
	default:
		chains := make([]bridge.ChainID, 0, len(s.cfg.Chains))
		for _, c := range s.cfg.Chains {
			chains = append(chains, bridge.ChainID(c.ID))
		}
		return memory.NewLedger(chains...), func() {}, nil
	}
}

func (s *Server) setupLimiter(ctx context.Context, store *db.Store, dir ratelimit.Directory, logger *zap.Logger) (*ratelimit.Limiter, error) {
	baseMax, err := decimal.NewFromString(s.cfg.RateLimit.BaseMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("rate_limit.base_max_tokens: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		WindowDuration:  s.cfg.RateLimit.WindowDuration,
		BaseMaxTokens:   baseMax,
		MaxTxPerWindow:  s.cfg.RateLimit.MaxTxPerWindow,
		TierMultipliers: s.cfg.RateLimit.Tiers,
	}, dir, store, logger)

	windows, err := store.ListWindows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rate windows: %w", err)
	}
	limiter.Restore(windows)
	logger.Info("Restored rate windows", zap.Int("count", len(windows)))

	return limiter, nil
}

// setupAdapters builds one adapter per configured protocol over a loopback
// network and reloads its consumed nonces.
func (s *Server) setupAdapters(ctx context.Context, lgr ledger.Ledger, limiter *ratelimit.Limiter, store *db.Store, logger *zap.Logger) (map[bridge.Protocol]*adapter.Adapter, error) {
	adapters := make(map[bridge.Protocol]*adapter.Adapter, len(s.cfg.Protocols))

	for _, entry := range s.cfg.Protocols {
		acfg, err := adapterConfig(entry)
		if err != nil {
			return nil, err
		}

		// The loopback network presents each origin chain under the same
		// identity the adapter trusts for it, so local round trips pass
		// the inbound sender check.
		network := adapter.NewLoopback(decimal.Zero, acfg.TrustedRemotes)
		a := adapter.New(acfg, network, lgr, limiter, store, logger)
		network.AttachHandler(a)

		for origin := range acfg.TrustedRemotes {
			nonces, err := store.ListNonces(ctx, acfg.Protocol, origin)
			if err != nil {
				return nil, fmt.Errorf("load nonces for %s chain %d: %w", acfg.Protocol, origin, err)
			}
			a.RestoreNonces(origin, nonces)
		}

		adapters[acfg.Protocol] = a
		logger.Info("Adapter ready",
			zap.String("protocol", string(acfg.Protocol)),
			zap.Int("chains", len(acfg.Chains)),
			zap.Int("trusted_remotes", len(acfg.TrustedRemotes)))
	}

	return adapters, nil
}

// adapterConfig overlays one config entry on the protocol's stock schedule.
func adapterConfig(entry config.ProtocolConfig) (adapter.Config, error) {
	acfg, err := adapter.DefaultConfig(bridge.Protocol(entry.Protocol))
	if err != nil {
		return adapter.Config{}, err
	}

	if entry.BaseFee != "" {
		if acfg.BaseFee, err = decimal.NewFromString(entry.BaseFee); err != nil {
			return adapter.Config{}, fmt.Errorf("protocol %s base_fee: %w", entry.Protocol, err)
		}
	}
	if entry.MinAmount != "" {
		if acfg.MinAmount, err = decimal.NewFromString(entry.MinAmount); err != nil {
			return adapter.Config{}, fmt.Errorf("protocol %s min_amount: %w", entry.Protocol, err)
		}
	}
	if entry.MaxAmount != "" {
		if acfg.MaxAmount, err = decimal.NewFromString(entry.MaxAmount); err != nil {
			return adapter.Config{}, fmt.Errorf("protocol %s max_amount: %w", entry.Protocol, err)
		}
	}
	if entry.FeeBps > 0 {
		acfg.FeeBps = entry.FeeBps
	}
	if entry.EstimatedTime > 0 {
		acfg.DeliveryEstimate = entry.EstimatedTime
	}
	if entry.SecurityLevel > 0 {
		acfg.SecurityLevel = entry.SecurityLevel
	}

	acfg.Chains = make([]bridge.ChainID, 0, len(entry.Chains))
	for _, c := range entry.Chains {
		acfg.Chains = append(acfg.Chains, bridge.ChainID(c))
	}

	acfg.TrustedRemotes = make(map[bridge.ChainID]string, len(entry.TrustedRemotes))
	for key, sender := range entry.TrustedRemotes {
		chain, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return adapter.Config{}, fmt.Errorf("protocol %s trusted remote key %q: %w", entry.Protocol, key, err)
		}
		acfg.TrustedRemotes[bridge.ChainID(chain)] = sender
	}

	return acfg, nil
}

// setupRoutes registers the adapters and the chain×protocol matrix and
// applies the configured enabled flags.
func (s *Server) setupRoutes(rtr *router.Router, adapters map[bridge.Protocol]*adapter.Adapter, logger *zap.Logger) error {
	for _, a := range adapters {
		rtr.RegisterAdapter(a)
	}

	matrix := config.DefaultRoutingMatrix(s.cfg)
	if s.matrixPath != "" {
		loaded, err := config.LoadRoutingMatrix(s.matrixPath)
		if err != nil {
			return err
		}
		matrix = loaded
		logger.Info("Loaded routing matrix", zap.String("path", s.matrixPath))
	}
	for _, chain := range matrix.Chains {
		for _, protocol := range chain.Protocols {
			if err := rtr.RegisterRoute(bridge.ChainID(chain.ID), bridge.Protocol(protocol)); err != nil {
				return err
			}
		}
	}

	for _, entry := range s.cfg.Protocols {
		if !entry.IsEnabled() {
			rtr.SetEnabled(bridge.Protocol(entry.Protocol), false)
			logger.Warn("Protocol disabled by configuration", zap.String("protocol", entry.Protocol))
		}
	}

	return nil
}

func (s *Server) setupOracle(ctx context.Context, store *db.Store, rtr *router.Router, adapters map[bridge.Protocol]*adapter.Adapter, logger *zap.Logger) (*oracle.Oracle, error) {
	tolerance, err := decimal.NewFromString(s.cfg.Oracle.ToleranceThreshold)
	if err != nil {
		return nil, fmt.Errorf("oracle.tolerance_threshold: %w", err)
	}
	expected, err := decimal.NewFromString(s.cfg.Oracle.ExpectedSupply)
	if err != nil {
		return nil, fmt.Errorf("oracle.expected_supply: %w", err)
	}

	orc := oracle.New(oracle.Config{
		RequiredSignatures:     s.cfg.Oracle.RequiredSignatures,
		ToleranceThreshold:     tolerance,
		ExpectedSupply:         expected,
		ValidityPeriod:         s.cfg.Oracle.ValidityPeriod,
		ClockSkewTolerance:     s.cfg.Oracle.ClockSkewTolerance,
		ReconciliationInterval: s.cfg.Oracle.ReconciliationInterval,
	}, store, logger)

	for _, c := range s.cfg.Chains {
		orc.RegisterChain(bridge.ChainID(c.ID))
	}
	for _, signer := range s.cfg.Oracle.Signers {
		if !common.IsHexAddress(signer) {
			return nil, fmt.Errorf("oracle signer %q is not a hex address", signer)
		}
		orc.RegisterSigner(common.HexToAddress(signer))
	}

	orc.RegisterPausable("router", rtr)
	for protocol, a := range adapters {
		orc.RegisterPausable("adapter_"+string(protocol), a)
	}

	supplies, err := store.ListChainSupplies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chain supplies: %w", err)
	}
	orc.RestoreSupplies(supplies)

	transfers, err := store.ListOpenTransfers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open transfers: %w", err)
	}
	rtr.RestoreTransfers(transfers)
	logger.Info("Restored persisted state",
		zap.Int("supplies", len(supplies)),
		zap.Int("open_transfers", len(transfers)))

	if s.cfg.Oracle.ReconciliationInterval > 0 {
		orc.StartPeriodicReconciliation(s.cfg.Oracle.ReconciliationInterval)
	}

	return orc, nil
}

// serveMetrics exposes /metrics and /ready on the monitoring port. The
// returned stopper shuts the listener down.
func (s *Server) serveMetrics(logger *zap.Logger) func() {
	if !s.cfg.Monitoring.Enabled {
		return func() {}
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Monitoring.MetricsPort),
		Handler: r,
	}
	go func() {
		logger.Info("Metrics server listening", zap.Int("port", s.cfg.Monitoring.MetricsPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
}
