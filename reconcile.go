package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Fixed poll interval for the audio readiness gate.
const audioReadyPoll = 2 * time.Second

// daemon drives the reconciliation loop for a single target device. All
// state transitions are strictly sequential; the only other goroutine is
// the signal watcher, which requests a clean stop via context cancel.
type daemon struct {
	cfg    *Config
	t      timing
	bt     bluetoothController
	audio  sinkSelector
	btUnit unitProber
	log    zerolog.Logger

	// sleep is context-aware and returns false when cancelled; tests swap
	// in a recorder.
	sleep func(ctx context.Context, d time.Duration) bool
}

func ctxSleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// isConnected treats any query failure as disconnected: a vanished device
// or an unreachable stack must never crash the loop.
func (d *daemon) isConnected() bool {
	on, err := d.bt.connected(d.cfg.Device.Address)
	return err == nil && on
}

// waitForBluetoothReady blocks until the adapter is powered and
// bluetooth.service is active, polling at the retry delay. Intentionally
// unbounded: the daemon cannot do anything useful before this holds.
func (d *daemon) waitForBluetoothReady(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		if powered, err := d.bt.adapterPowered(); err == nil && powered {
			if active, err := d.btUnit.active(bluetoothUnit); err == nil && active {
				return true
			}
		}
		d.log.Info().Msg("waiting for bluetooth adapter")
		if !d.sleep(ctx, d.t.retryDelay) {
			return false
		}
	}
}

// waitForAudioReady blocks until one of the audio server units reports
// active, polling at a fixed 2s interval.
func (d *daemon) waitForAudioReady(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		if d.audio.detectBackend() != BackendNone {
			return true
		}
		d.log.Info().Msg("waiting for audio server")
		if !d.sleep(ctx, audioReadyPoll) {
			return false
		}
	}
}

// run executes the reconciliation loop until ctx is cancelled. No
// recoverable failure returns from here; everything is absorbed into a log
// line and a state transition.
func (d *daemon) run(ctx context.Context) {
	if !d.waitForBluetoothReady(ctx) {
		return
	}
	if !d.waitForAudioReady(ctx) {
		return
	}
	d.log.Info().Msgf("supervising %s", d.cfg.Device.Address)

	state := stateAwaitingConnection
	for ctx.Err() == nil {
		switch state {
		case stateAwaitingConnection:
			state = d.stepAwaiting(ctx)
		case stateConnectedStable:
			state = d.stepStable(ctx)
		}
	}
}

// stepAwaiting adopts an existing connection or makes one connect attempt,
// then reports the next state. Every path that stays in
// stateAwaitingConnection sleeps the retry delay exactly once — a flat
// pacing floor against tight retry loops on persistent failure.
func (d *daemon) stepAwaiting(ctx context.Context) loopState {
	addr := d.cfg.Device.Address

	if d.isConnected() {
		d.log.Info().Msgf("device %s already connected", addr)
		d.assignSink()
		return stateConnectedStable
	}

	if err := d.bt.connect(addr); err != nil {
		d.log.Info().Msgf("connect to %s failed: %v", addr, err)
		d.sleep(ctx, d.t.retryDelay)
		return stateAwaitingConnection
	}

	// The connect call resolves asynchronously on the device side; give it
	// a settle period before trusting the state.
	d.sleep(ctx, d.t.connectSettle)
	if d.isConnected() {
		d.log.Info().Msgf("connected to %s", addr)
		d.assignSink()
		return stateConnectedStable
	}

	d.log.Info().Msg("connect reported success but device not truly connected")
	d.sleep(ctx, d.t.retryDelay)
	return stateAwaitingConnection
}

// stepStable polls liveness at the polling interval. The transition back
// to stateAwaitingConnection adds no extra delay: the next decision is an
// immediate connect attempt.
func (d *daemon) stepStable(ctx context.Context) loopState {
	if !d.sleep(ctx, d.t.pollInterval) {
		return stateConnectedStable
	}
	if d.isConnected() {
		return stateConnectedStable
	}
	d.log.Info().Msg("disconnected, attempting reconnect")
	return stateAwaitingConnection
}

// assignSink tries to make the target the default sink. Failures are
// logged and absorbed; the loop does not block on them.
func (d *daemon) assignSink() {
	if err := d.audio.setDefaultSink(d.cfg.Device.Sink); err != nil {
		d.log.Info().Msgf("default sink not set: %v", err)
		return
	}
	d.log.Info().Msgf("default sink set to %s", d.cfg.Device.Sink)
}

func runDaemon(configFlag string) error {
	cfg, err := loadConfig(configPath(configFlag))
	if err != nil {
		return err
	}

	logger, logFile, err := newEventLogger(cfg.Log.Path)
	if err != nil {
		return err
	}
	defer logFile.Close()

	bz, err := newBluez()
	if err != nil {
		return err
	}
	defer bz.close()

	sysUnits, err := newSystemUnits()
	if err != nil {
		return err
	}
	sessUnits, err := newSessionUnits()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown: the current command/sleep finishes, then the loop
	// stops.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info().Msg("shutting down")
		cancel()
	}()

	d := &daemon{
		cfg:    cfg,
		t:      cfg.Timing.durations(),
		bt:     bz,
		audio:  newAudioController(sessUnits),
		btUnit: sysUnits,
		log:    logger,
		sleep:  ctxSleep,
	}
	logger.Info().Msg("starting")
	d.run(ctx)
	return nil
}
