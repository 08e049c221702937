package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/skobkin/meshbridge/internal/api"
	"github.com/skobkin/meshbridge/internal/automation"
	"github.com/skobkin/meshbridge/internal/bus"
	"github.com/skobkin/meshbridge/internal/config"
	"github.com/skobkin/meshbridge/internal/connectors"
	"github.com/skobkin/meshbridge/internal/domain"
	"github.com/skobkin/meshbridge/internal/link"
	"github.com/skobkin/meshbridge/internal/logging"
	"github.com/skobkin/meshbridge/internal/persistence"
	"github.com/skobkin/meshbridge/internal/platform"
	"github.com/skobkin/meshbridge/internal/radio"
	"github.com/skobkin/meshbridge/internal/radioconfig"
	"github.com/skobkin/meshbridge/internal/telemetry"
)

// Runtime owns every long-lived component of the bridge.
type Runtime struct {
	cancel context.CancelFunc

	Paths  Paths
	Config config.Config

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	DB         *sql.DB

	NodeRepo    *persistence.NodeRepo
	MessageRepo *persistence.MessageRepo
	EventRepo   *persistence.EventRepo
	WriterQueue *persistence.WriterQueue

	NodeStore *domain.NodeStore
	Radio     *radio.Service

	MQTT       *automation.Client
	Automation *automation.Adapter
	Influx     *telemetry.Client
	API        *api.Server

	targetLock platform.TargetLock

	connStatusMu sync.RWMutex
	connStatus   connectors.ConnStatus
}

// Initialize loads the configuration and builds the bridge. An empty
// configPath selects the per-user config file.
func Initialize(parent context.Context, configPath string) (*Runtime, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, err
	}
	if configPath == "" {
		configPath = paths.ConfigFile
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		cancel:     cancel,
		Paths:      paths,
		Config:     cfg,
		connStatus: InitialConnStatus(cfg.Connection),
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting meshbridge", "version", BuildString(), "config", configPath)

	lock, err := platform.AcquireTargetLock(Name, ConnectionTarget(cfg.Connection))
	switch {
	case errors.Is(err, platform.ErrTargetLockUnsupported):
		slog.Warn("radio target lock unavailable", "error", err)
	case err != nil:
		_ = rt.Close()
		return nil, err
	default:
		rt.targetLock = lock
	}

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	bus.Consume(ctx, b, rt.captureConnStatus, connectors.TopicConnStatus)

	rt.NodeStore = domain.NewNodeStore()
	if cfg.Journal.Enabled {
		if err := rt.openJournal(ctx); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	rt.NodeStore.Start(ctx, b)

	codec, err := radio.NewMeshtasticCodec()
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize meshtastic codec: %w", err)
	}
	tr, power, err := NewTransport(cfg.Connection, cfg.Bridge)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize transport: %w", err)
	}
	var tx *radioconfig.Transaction
	if cfg.RadioConfig != nil {
		if tx, err = radioconfig.Build(*cfg.RadioConfig); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("build radio config: %w", err)
		}
	}
	// Validate has already checked the destination.
	dest, _ := cfg.DestinationNum()

	rt.Radio = radio.NewService(logMgr.Logger("radio"), b, tr, power, codec, radio.Options{
		Link: link.Config{
			PowerOnDelay:  cfg.Bridge.PowerOnDelay,
			BootTimeout:   cfg.Bridge.BootTimeout,
			AckTimeout:    cfg.Bridge.AckTimeout,
			ProbeInterval: cfg.Bridge.ProbeInterval,
		},
		Destination:  dest,
		Channel:      cfg.Bridge.Channel,
		EnableOnBoot: cfg.Bridge.EnableOnBoot,
		Transaction:  tx,
	})

	if cfg.MQTT.Enabled {
		client, err := automation.Connect(cfg.MQTT, logMgr.Logger("mqtt"))
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.MQTT = client
		rt.Automation = automation.NewAdapter(logMgr.Logger("automation"), b, rt.Radio, client, cfg.MQTT.Prefix, byte(cfg.MQTT.QoS))
	}

	if cfg.Influx.Enabled {
		influx, err := telemetry.Connect(cfg.Influx)
		if err != nil {
			logMgr.Logger("telemetry").Warn("influxdb unavailable, telemetry disabled", "error", err)
		} else {
			influxLogger := logMgr.Logger("telemetry")
			influx.SetOnError(func(err error) {
				influxLogger.Warn("influxdb write failed", "error", err)
			})
			rt.Influx = influx
			telemetry.StartRecorder(ctx, b, influx)
		}
	}

	if cfg.HTTP.Enabled {
		deps := api.Deps{
			Logger:     logMgr.Logger("api"),
			Config:     cfg.HTTP,
			Bus:        b,
			Bridge:     rt.Radio,
			Nodes:      rt.NodeStore,
			Connection: rt,
		}
		if rt.DB != nil {
			deps.Messages = rt.MessageRepo
			deps.Events = rt.EventRepo
		}
		deps.Health = rt.healthChecks()
		server, err := api.New(deps)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("initialize http api: %w", err)
		}
		rt.API = server
	}

	return rt, nil
}

func (r *Runtime) openJournal(ctx context.Context) error {
	path, err := r.Paths.DataFile(r.Config.Journal.Path)
	if err != nil {
		return err
	}
	db, err := persistence.Open(ctx, path)
	if err != nil {
		return err
	}
	r.DB = db
	r.NodeRepo = persistence.NewNodeRepo(db)
	r.MessageRepo = persistence.NewMessageRepo(db)
	r.EventRepo = persistence.NewEventRepo(db)

	loadCtx, cancel := context.WithTimeout(ctx, storeLoadTimeout)
	defer cancel()
	restored, err := r.NodeStore.Restore(loadCtx, r.NodeRepo)
	if err != nil {
		return err
	}

	logger := r.LogManager.Logger("persistence")
	r.WriterQueue = persistence.NewWriterQueue(logger, writerQueueCapacity)
	r.WriterQueue.Start(ctx)
	domain.StartPersistenceProjection(ctx, r.Bus, r.WriterQueue, r.NodeRepo, r.MessageRepo, r.EventRepo)
	persistence.StartRetentionPruner(ctx, logger, r.EventRepo, r.Config.Journal.Retention, pruneInterval)
	slog.Info("journal opened", "path", path, "nodes", restored)

	return nil
}

// Run drives the radio service and the enabled outer surfaces until ctx is
// done or one of them fails.
func (r *Runtime) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Radio.Run(gctx)
	})
	if r.Automation != nil {
		g.Go(func() error {
			if err := r.Automation.Start(gctx); err != nil {
				return fmt.Errorf("start mqtt automation: %w", err)
			}
			return nil
		})
	}
	if r.API != nil {
		g.Go(func() error {
			return r.API.Start(gctx)
		})
	}

	return g.Wait()
}

func (r *Runtime) healthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{}
	if r.MQTT != nil {
		mqtt := r.MQTT
		checks["mqtt"] = func(context.Context) error {
			if !mqtt.IsConnected() {
				return automation.ErrNotConnected
			}
			return nil
		}
	}
	if r.Influx != nil {
		checks["influx"] = r.Influx.HealthCheck
	}
	if r.DB != nil {
		checks["journal"] = r.DB.PingContext
	}

	return checks
}

// CurrentConnStatus returns the last transport status seen on the bus.
func (r *Runtime) CurrentConnStatus() connectors.ConnStatus {
	r.connStatusMu.RLock()
	defer r.connStatusMu.RUnlock()

	return r.connStatus
}

func (r *Runtime) captureConnStatus(msg any) {
	status, ok := msg.(connectors.ConnStatus)
	if !ok {
		return
	}
	r.connStatusMu.Lock()
	r.connStatus = status
	r.connStatusMu.Unlock()
}

// Close flushes pending journal writes and releases every resource. It is
// safe to call on a partially initialized runtime.
func (r *Runtime) Close() error {
	if r.WriterQueue != nil {
		r.WriterQueue.Flush()
	}
	if r.cancel != nil {
		r.cancel()
	}

	var errs []error
	if r.MQTT != nil {
		if err := r.MQTT.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mqtt: %w", err))
		}
	}
	if r.Influx != nil {
		if err := r.Influx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close influxdb: %w", err))
		}
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	if r.targetLock != nil {
		if err := r.targetLock.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.LogManager != nil {
		if err := r.LogManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close logs: %w", err))
		}
	}

	return errors.Join(errs...)
}
