package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/nvxd/internal/adapter"
	"github.com/dokzlo13/nvxd/internal/config"
	"github.com/dokzlo13/nvxd/internal/derive"
)

// App runs the adapter of one NVX device together with its host surfaces.
type App struct {
	cfg      *config.Config
	services *Services
	monitor  *deviceMonitor
	ctx      context.Context
	cancel   context.CancelFunc
}

// New wires the services. Nothing talks to the device until Start or Once.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	monitor := newDeviceMonitor(cfg.Device.ID())
	monitor.attach(services.Bus)

	return &App{
		cfg:      cfg,
		services: services,
		monitor:  monitor,
	}, nil
}

// Start connects the sinks and starts polling. A device that is down at
// startup is not an error; the poller keeps trying.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	onFatalError := func(err error) {
		log.Error().Err(err).Msg("Fatal error, initiating shutdown")
		a.cancel()
	}

	if err := a.services.Start(a.ctx, onFatalError); err != nil {
		a.cancel()
		a.services.Close()
		return err
	}
	go a.checkDevice(a.ctx)

	log.Info().
		Str("device", a.cfg.Device.ID()).
		Str("host", a.cfg.Device.Host).
		Int("port", a.cfg.Device.Port).
		Dur("poll_interval", a.cfg.Poll.Interval.Duration()).
		Msg("nvxd started")
	return nil
}

// checkDevice reports whether the device answers a ping before the first
// cycle completes.
func (a *App) checkDevice(ctx context.Context) {
	latency, err := a.services.Adapter.Ping(ctx)
	switch {
	case errors.Is(err, adapter.ErrPingDisabled), errors.Is(err, context.Canceled):
	case err != nil:
		log.Warn().Err(err).Str("host", a.cfg.Device.Host).Str("ping_mode", a.cfg.Device.PingMode).Msg("Device does not answer ping")
	default:
		log.Info().Str("host", a.cfg.Device.Host).Dur("latency", latency).Msg("Device answers ping")
	}
}

// Once runs a single poll cycle and returns the view without starting the
// background services. The app cannot be started afterwards.
func (a *App) Once(ctx context.Context) (derive.View, error) {
	defer a.services.Close()
	return a.services.Adapter.GetView(ctx)
}

// DeviceState returns the availability of the device and the number of
// consecutive failed poll cycles.
func (a *App) DeviceState() (DeviceState, int) {
	return a.monitor.State()
}

// Stop gracefully shuts down all services.
func (a *App) Stop() error {
	state, failures := a.monitor.State()
	log.Info().Str("device_state", string(state)).Int("failed_cycles", failures).Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}

	if a.services != nil {
		return a.services.Stop()
	}

	return nil
}

// Wait blocks until the application context is cancelled.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
