package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kcenon/common-game-server-sub000/internal/dbproxy"
	"github.com/kcenon/common-game-server-sub000/internal/gameserver"
	"github.com/kcenon/common-game-server-sub000/internal/persistence"
	"github.com/kcenon/common-game-server-sub000/pkg/config"
	"github.com/kcenon/common-game-server-sub000/pkg/logger"
	"github.com/kcenon/common-game-server-sub000/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file (falls back to $CGS_CONFIG_PATH, then /etc/cgs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLog := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	var met *metrics.Metrics
	if cfg.Metrics.Enabled {
		met = metrics.Init(cfg.Metrics.ServiceName)
	}

	server := gameserver.NewServer(gameserver.Config{
		TickRateHz:        cfg.GameLoop.TickRateHz,
		SpatialCellSize:   cfg.Spatial.CellSize,
		AITickInterval:    0.5,
		MaxInstances:      uint32(cfg.Instances.MaxInstances),
		MaxPlayersPerInst: uint32(cfg.Instances.MaxPlayersPerInst),
	}, appLog)

	proxy := dbproxy.NewProxy(dbproxy.Config{
		Primary: dbproxy.EndpointConfig{
			Driver:       cfg.Database.Primary.Driver,
			DSN:          cfg.Database.Primary.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		},
		Cache: dbproxy.CacheConfig{
			MaxEntries: cfg.Cache.MaxEntries,
			DefaultTTL: time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		},
	}, met, appLog)

	if cfg.Database.Primary.DSN != "" {
		if err := proxy.Start(); err != nil {
			appLog.WithField("error", err).Error("dbproxy failed to start; continuing without database access")
		} else {
			defer proxy.Stop()
		}
	}

	persistenceManager := persistence.NewManager(persistence.ManagerConfig{
		Wal: persistence.WalConfig{
			Directory:   cfg.Persistence.WALDir,
			SyncOnWrite: cfg.Persistence.SyncOnWrite,
		},
		Snapshot: persistence.SnapshotConfig{
			Directory:   cfg.Persistence.SnapshotDir,
			MaxRetained: uint32(cfg.Persistence.SnapshotRetain),
		},
		SnapshotInterval: time.Duration(cfg.Persistence.SnapshotInterval) * time.Second,
	}, appLog)

	if err := persistenceManager.Start(server.CollectPlayerStates, server.RestoreSnapshot, server.ApplyWalEntry); err != nil {
		appLog.WithField("error", err).Fatal("persistence recovery failed")
	}

	if err := server.Start(); err != nil {
		appLog.WithField("error", err).Fatal("failed to start game server")
	}
	appLog.WithField("tick_rate_hz", cfg.GameLoop.TickRateHz).Info("cgs-server running")

	if met != nil {
		met.HealthReady.Set(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	appLog.Info("shutdown signal received")
	if met != nil {
		met.HealthReady.Set(0)
	}

	server.Stop()
	persistenceManager.Stop()
}
