package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rewardnet/config"
	"rewardnet/core/events"
	"rewardnet/core/state"
	"rewardnet/core/types"
	"rewardnet/crypto"
	"rewardnet/native/rewards"
	"rewardnet/observability/logging"
	"rewardnet/observability/metrics"
	"rewardnet/rpc"
	"rewardnet/storage"
)

const (
	adminAddressEnv     = "REWARDNET_ADMIN_ADDRESS"
	validatorAddressEnv = "REWARDNET_VALIDATOR_ADDRESS"
)

// logEmitter forwards ledger events to the structured logger. A standalone
// deployment has no downstream event bus, so the log stream is the audit trail.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		l.log.Info(evt.EventType())
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}
	attrs := make([]any, 0, len(payload.Attributes))
	for k, v := range payload.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	l.log.Info(payload.Type, attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("REWARDNET_ENV"))
	logger := logging.Setup("rewardd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	if !manager.TokenExists(cfg.TokenSymbol) {
		if err := manager.RegisterToken(cfg.TokenSymbol, "Reward Token", 18); err != nil {
			logger.Error("Failed to register reward token", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("registered reward token", "symbol", cfg.TokenSymbol)
	}

	if err := grantRoleFromEnv(manager, rewards.RoleAdmin, adminAddressEnv, logger); err != nil {
		os.Exit(1)
	}
	if err := grantRoleFromEnv(manager, rewards.RoleValidator, validatorAddressEnv, logger); err != nil {
		os.Exit(1)
	}

	engine := rewards.NewEngine(cfg.TokenSymbol)
	engine.SetState(manager)
	engine.SetPauses(manager)
	engine.SetEmitter(&logEmitter{log: logger.With("component", "ledger")})
	engine.SetMetrics(metrics.Rewards())

	go func() {
		logger.Info("starting metrics endpoint", "addr", cfg.MetricsAddress)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("Metrics endpoint failed", slog.Any("error", err))
		}
	}()

	server := rpc.NewServer(engine, logger.With("component", "rpc"))
	server.SetClaimRateLimit(cfg.ClaimRatePerMinute, cfg.ClaimRateBurst)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// grantRoleFromEnv grants role to the bech32 address named by the environment
// variable. Missing variables are skipped so operators can bootstrap roles out
// of band instead.
func grantRoleFromEnv(manager *state.Manager, role, envVar string, logger *slog.Logger) error {
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return nil
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		logger.Error("Invalid address in environment", "var", envVar, slog.Any("error", err))
		return err
	}
	if err := manager.SetRole(role, addr.Bytes()); err != nil {
		logger.Error("Failed to grant role", "role", role, slog.Any("error", err))
		return err
	}
	logger.Info("granted role", "role", role, "address", value)
	return nil
}
