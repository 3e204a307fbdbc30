package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/commyio/commy/internal/logger"
	"github.com/commyio/commy/internal/telemetry"
	"github.com/commyio/commy/pkg/api"
	"github.com/commyio/commy/pkg/config"
	"github.com/commyio/commy/pkg/manager"
	"github.com/commyio/commy/pkg/mesh"
	"github.com/commyio/commy/pkg/metrics"
	"github.com/commyio/commy/pkg/transport"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the commy daemon",
	Long: `Start the Shared-File Manager, Transport Router, and Mesh Coordinator
as a single commy node.

Use --config to point at a config file, or it falls back to
$XDG_CONFIG_HOME/commy/config.yaml, then to built-in defaults.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "commyd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	} else {
		metrics.Disable()
	}

	authProvider, err := newAuthProvider(cfg.Manager.AuthSecret)
	if err != nil {
		return fmt.Errorf("init auth provider: %w", err)
	}

	mgr, err := manager.New(manager.Config{
		FilesDirectory:    cfg.Manager.BaseDir,
		MaxFiles:          cfg.Manager.MaxFiles,
		MaxFileSize:       int64(cfg.Manager.MaxFileSize),
		DefaultTTLSeconds: int64(cfg.Manager.DefaultTTL.Seconds()),
		CleanupInterval:   cfg.Manager.CleanupInterval,
	}, authProvider)
	if err != nil {
		return fmt.Errorf("init manager: %w", err)
	}
	mgr.Start(ctx)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Error("manager shutdown error", "error", err)
		}
	}()

	local := transport.NewLocalTransport(cfg.Manager.BaseDir)
	network, err := transport.NewNetworkTransport(transport.NetworkConfig{
		ConnectTimeout: cfg.Transport.Network.DialTimeout,
		ReadTimeout:    cfg.Transport.Network.RequestTimeout,
		WriteTimeout:   cfg.Transport.Network.RequestTimeout,
		IdleTimeout:    cfg.Transport.Network.IdleTimeout,
		MaxConnections: 100,
		TLS:            transport.TLSConfig{Enabled: cfg.Transport.Network.TLSEnabled},
	})
	if err != nil {
		return fmt.Errorf("init network transport: %w", err)
	}
	network.Start(ctx)
	defer network.Stop()

	// Operation carries no per-call target address, so the network
	// executor is bound to a single configured peer; multi-peer dynamic
	// targeting happens one layer up, through the Mesh Coordinator's
	// service discovery and endpoint selection.
	router := transport.NewRouter(transport.Config{
		DefaultPreference: transport.ParsePreference(cfg.Transport.DefaultPreference),
		Fallback:          transport.ParseFallback(cfg.Transport.Fallback),
		Thresholds: transport.PerformanceThresholds{
			LargeMessageThresholdBytes: cfg.Transport.LargeMessageThresholdBytes,
			HighConnectionThreshold:    cfg.Transport.HighConnectionThreshold,
		},
	}, local, network.BoundExecutor(cfg.Transport.Network.ListenAddress), network)

	coordinator := mesh.NewMeshCoordinator(mesh.CoordinatorConfig{
		Balancer: mesh.BalancerConfig{
			OpenThreshold:         cfg.Mesh.CircuitOpenThreshold,
			CircuitBreakerTimeout: cfg.Mesh.CircuitBreakerTimeout,
			CloseThreshold:        cfg.Mesh.CircuitCloseThreshold,
			ReopenThreshold:       cfg.Mesh.CircuitReopenThreshold,
			Algorithm:             mesh.ParseAlgorithm(cfg.Mesh.Algorithm),
		},
		AlertConditions: mesh.DefaultCoordinatorConfig().AlertConditions,
	})
	coordinator.Start(ctx)
	defer coordinator.Stop()

	if cfg.ControlPlane.Enabled {
		apiServer := api.NewServer(api.Config{
			Port:       cfg.ControlPlane.Port,
			AuthSecret: cfg.Manager.AuthSecret,
		}, coordinator, mgr, router)
		go func() {
			if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("control-plane server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer shutdownCancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
		logger.Info("control plane enabled", "port", cfg.ControlPlane.Port)
	}

	logger.Info("commyd started",
		"manager_dir", cfg.Manager.BaseDir,
		"network_listen", cfg.Transport.Network.ListenAddress,
		"mesh_algorithm", cfg.Mesh.Algorithm)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	signal.Stop(sigChan)

	logger.Info("shutdown signal received, stopping")
	cancel()

	return nil
}

func newAuthProvider(secret string) (manager.AuthProvider, error) {
	if secret == "" {
		logger.Warn("manager.auth_secret is empty, accepting every request token")
		return &manager.MockAuthProvider{Verdict: manager.AuthAccepted}, nil
	}
	return manager.NewJWTAuthProvider([]byte(secret)), nil
}
