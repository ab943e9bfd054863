package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/nvxd/internal/adapter"
	"github.com/dokzlo13/nvxd/internal/api"
	"github.com/dokzlo13/nvxd/internal/config"
	"github.com/dokzlo13/nvxd/internal/db"
	"github.com/dokzlo13/nvxd/internal/eventbus"
	"github.com/dokzlo13/nvxd/internal/ledger"
	"github.com/dokzlo13/nvxd/internal/nvx"
	"github.com/dokzlo13/nvxd/internal/poller"
	"github.com/dokzlo13/nvxd/internal/sink/influx"
	"github.com/dokzlo13/nvxd/internal/sink/mqtt"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Device
	Client  *nvx.Client
	Adapter *adapter.Adapter
	Poller  *poller.Poller

	// Host-facing surfaces
	Hub    *api.Hub
	API    *api.Server
	MQTT   *mqtt.Publisher
	Influx *influx.Writer

	group *errgroup.Group
}

// NewServices creates all services with proper dependency injection.
// Broker and time-series connections are made in Start.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	opts := adapter.Options{
		DeviceID:        cfg.Device.ID(),
		IncludeControls: cfg.Device.ControlsEnabled(),
		Publisher:       s.Bus,
		Pinger: nvx.Pinger{
			Host:     cfg.Device.Host,
			Port:     cfg.Device.Port,
			Mode:     nvx.PingMode(cfg.Device.PingMode),
			Attempts: cfg.Device.PingAttempts,
			Timeout:  cfg.Device.PingTimeout.Duration(),
		},
	}

	if cfg.Ledger.Enabled {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open ledger database: %w", err)
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
		opts.Recorder = s.Ledger
	}

	s.Client = nvx.NewClient(nvx.Options{
		Host:               cfg.Device.Host,
		Port:               cfg.Device.Port,
		Login:              cfg.Device.Login,
		Password:           cfg.Device.Password,
		Timeout:            cfg.Device.Timeout.Duration(),
		InsecureSkipVerify: cfg.Device.InsecureSkipVerify(),
		RateLimitRPS:       cfg.Device.RateLimitRPS,
	})
	s.Adapter = adapter.New(s.Client, opts)
	s.Poller = poller.New(s.Adapter, cfg.Poll.Interval.Duration())

	if cfg.API.IsEnabled() {
		s.Hub = api.NewHub()
		s.Hub.Attach(s.Bus)
		s.API = api.NewServer(cfg.API.Host, cfg.API.Port, s.Adapter, s.Poller, s.Hub)
		if s.Ledger != nil {
			s.API.WithHistory(s.Ledger)
		}
	}

	return s, nil
}

// Start connects the optional sinks and launches the background services.
// onFatalError is called once if a background service exits with an error.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if s.cfg.MQTT.Enabled {
		var controller mqtt.Controller
		if s.cfg.MQTT.Controls {
			controller = s.Adapter
		}
		p, err := mqtt.Connect(ctx, s.cfg.MQTT, s.cfg.Device.ID(), controller)
		if err != nil {
			return err
		}
		s.MQTT = p
		s.MQTT.Attach(s.Bus)
	}

	if s.cfg.Influx.Enabled {
		w, err := influx.Connect(ctx, s.cfg.Influx)
		if err != nil {
			return err
		}
		s.Influx = w
		s.Influx.Attach(s.Bus)
	}

	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	g.Go(func() error { return s.Poller.Run(gctx) })

	if s.API != nil {
		g.Go(func() error {
			s.Hub.Run(gctx)
			return nil
		})
		g.Go(func() error { return s.API.Run(gctx, s.cfg.ShutdownTimeout.Duration()) })
	}

	if s.Ledger != nil {
		retention := s.cfg.Ledger.RetentionDuration()
		g.Go(func() error {
			s.Ledger.RunCleanup(gctx, s.cfg.Ledger.CleanupInterval.Duration(), retention)
			return nil
		})
	}

	go func() {
		if err := g.Wait(); err != nil {
			onFatalError(err)
		}
	}()

	log.Info().
		Str("device", s.cfg.Device.ID()).
		Bool("api", s.API != nil).
		Bool("mqtt", s.MQTT != nil).
		Bool("influx", s.Influx != nil).
		Bool("ledger", s.Ledger != nil).
		Msg("Services started")
	return nil
}

// Stop waits for the background services, which exit when the Start
// context is cancelled, and then releases all resources.
func (s *Services) Stop() error {
	var err error
	if s.group != nil {
		err = s.group.Wait()
	}
	s.Close()
	return err
}

// Close releases all resources.
func (s *Services) Close() {
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Influx != nil {
		s.Influx.Close()
	}
	if s.Client != nil {
		s.Client.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
