package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"stylustx/cmd/internal/passphrase"
	"stylustx/config"
	"stylustx/core/events"
	"stylustx/core/host"
	"stylustx/core/state"
	"stylustx/crypto"
	"stylustx/native/paymaster"
	"stylustx/observability"
	"stylustx/observability/logging"
	telemetry "stylustx/observability/otel"
	"stylustx/rpc"
	"stylustx/storage"
)

const serviceName = "stylustxd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("STYLUSTX_ENV"))
	bootLogger := logging.Setup(serviceName, env)

	passSource := passphrase.NewSource(config.DefaultPassphraseEnv, passphrase.WithLabel("owner keystore"))

	cfg, err := config.Load(*configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		bootLogger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Environment
	}

	logger, closer := logging.SetupWithOptions(serviceName, env, logging.Options{File: cfg.LogFile})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.PassphraseEnv != config.DefaultPassphraseEnv {
		passSource = passphrase.NewSource(cfg.PassphraseEnv, passphrase.WithLabel("owner keystore"))
	}

	if err := run(ctx, cfg, passSource, logger); err != nil {
		logger.Error("Relay stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, passSource *passphrase.Source, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	owner, err := unlockOwner(cfg.OwnerKeystorePath, passSource, logger)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.StorageBackend, err)
	}
	defer db.Close()

	node, err := bootstrap(cfg, db, owner.Address(), logger)
	if err != nil {
		return err
	}

	logger.Info("Relay ready",
		slog.String("relay", node.relay.Hex()),
		slog.String("owner", owner.Address().Hex()),
		slog.String("storage", cfg.StorageBackend),
		slog.String("listen", cfg.ListenAddress))

	return node.server.Serve(ctx, cfg.ListenAddress)
}

// unlockOwner decrypts the owner keystore. Log lines carry only the file name
// and a masked passphrase.
func unlockOwner(path string, passSource *passphrase.Source, logger *slog.Logger) (*crypto.PrivateKey, error) {
	pass, err := passSource.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		logger.Error("Failed to unlock owner keystore",
			logging.RedactKeystore(path),
			logging.MaskField("passphrase", pass),
			slog.Any("error", err))
		return nil, fmt.Errorf("load owner key: %w", err)
	}
	logger.Info("Owner keystore unlocked",
		logging.RedactKeystore(path),
		logging.MaskField("passphrase", pass),
		slog.String("owner", key.Address().Hex()))
	return key, nil
}

type relayNode struct {
	host     *host.Host
	engine   *paymaster.Engine
	server   *rpc.Server
	eventLog *events.Log
	registry *prometheus.Registry
	relay    common.Address
}

// bootstrap deploys the relay program over db and initializes it with owner
// when the persisted state is fresh.
func bootstrap(cfg *config.Config, db storage.Database, owner common.Address, logger *slog.Logger) (*relayNode, error) {
	relay := cfg.Relay()
	target := cfg.Target()

	registry := prometheus.NewRegistry()
	eventLog := events.NewLog()
	emitters := events.MultiEmitter{eventLog}
	opts := []paymaster.Option{paymaster.WithLogger(logger)}
	if cfg.MetricsEnabled {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		emitters = append(emitters, observability.NewEventMetrics(registry))
		opts = append(opts, paymaster.WithMetrics(observability.NewPaymasterMetrics(registry)))
	}
	opts = append(opts, paymaster.WithEmitter(emitters))

	h := host.New()
	if cfg.DeployEchoTarget {
		h.Deploy(target, echoProgram)
	}
	engine := paymaster.Deploy(h, relay, state.NewManager(db), opts...)

	initialized, err := engine.IsInitialized()
	if err != nil {
		return nil, fmt.Errorf("read relay state: %w", err)
	}
	if !initialized {
		calldata, err := paymaster.ABI().Pack("initialize", target)
		if err != nil {
			return nil, err
		}
		if _, err := h.Submit(owner, relay, nil, calldata); err != nil {
			return nil, fmt.Errorf("initialize relay: %w", err)
		}
		logger.Info("Relay initialized", slog.String("owner", owner.Hex()), slog.String("target", target.Hex()))
	} else {
		current, err := engine.Config()
		if err != nil {
			return nil, fmt.Errorf("read relay config: %w", err)
		}
		if current.AllowedTarget != target {
			logger.Warn("Configured target differs from persisted allow-list; the persisted value is used",
				slog.String("configured", target.Hex()),
				slog.String("target", current.AllowedTarget.Hex()))
		}
		if current.Owner != owner {
			logger.Warn("Owner keystore does not control the relay; admin routes will be rejected",
				slog.String("owner", current.Owner.Hex()))
		}
	}

	server := rpc.NewServer(engine, h, eventLog, rpc.Config{
		Relay:           relay,
		Relayer:         owner,
		Operator:        owner,
		ChainID:         cfg.ChainID,
		DefaultDeadline: cfg.DeadlineOffset(),
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
		},
		Admin: rpc.AdminAuth{
			HMACSecret: os.Getenv(cfg.Admin.JWTSecretEnv),
			Issuer:     cfg.Admin.Issuer,
			Audience:   cfg.Admin.Audience,
		},
		Registry: registry,
		Logger:   logger,
	})

	return &relayNode{host: h, engine: engine, server: server, eventLog: eventLog, registry: registry, relay: relay}, nil
}

var errEchoRevert = errors.New("echo: revert requested")

// echoProgram is the demo target: it returns its input, or fails when the
// input starts with "revert".
func echoProgram(call host.Call) ([]byte, error) {
	if strings.HasPrefix(string(call.Input), "revert") {
		return nil, errEchoRevert
	}
	return append([]byte(nil), call.Input...), nil
}
