package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBluetooth replays scripted observations; the last element of each
// sequence sticks.
type fakeBluetooth struct {
	powered      []bool
	connectedSeq []bool
	connectErrs  []error
	connectCalls int
}

func popBool(s *[]bool) bool {
	if len(*s) == 0 {
		return false
	}
	v := (*s)[0]
	if len(*s) > 1 {
		*s = (*s)[1:]
	}
	return v
}

func (f *fakeBluetooth) adapterPowered() (bool, error) {
	return popBool(&f.powered), nil
}

func (f *fakeBluetooth) connected(addr string) (bool, error) {
	return popBool(&f.connectedSeq), nil
}

func (f *fakeBluetooth) connect(addr string) error {
	f.connectCalls++
	if len(f.connectErrs) == 0 {
		return nil
	}
	err := f.connectErrs[0]
	if len(f.connectErrs) > 1 {
		f.connectErrs = f.connectErrs[1:]
	}
	return err
}

type fakeSink struct {
	backends []Backend
	setErr   error
	setCalls []string
}

func (f *fakeSink) detectBackend() Backend {
	if len(f.backends) == 0 {
		return BackendPulseAudio
	}
	b := f.backends[0]
	if len(f.backends) > 1 {
		f.backends = f.backends[1:]
	}
	return b
}

func (f *fakeSink) setDefaultSink(sink string) error {
	f.setCalls = append(f.setCalls, sink)
	return f.setErr
}

type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) bool {
	s.slept = append(s.slept, d)
	return true
}

func newTestDaemon(bt *fakeBluetooth, sink *fakeSink) (*daemon, *sleepRecorder, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	sr := &sleepRecorder{}
	d := &daemon{
		cfg: &Config{Device: DeviceConfig{
			Address: "AA:BB:CC:DD:EE:FF",
			Sink:    "bluez_output.AA_BB_CC_DD_EE_FF.1",
		}},
		t:      TimingConfig{RetryDelay: 5, PollInterval: 10, ConnectSettle: 3}.durations(),
		bt:     bt,
		audio:  sink,
		btUnit: fakeUnits{map[string]bool{bluetoothUnit: true}},
		log:    eventLoggerTo(buf),
		sleep:  sr.sleep,
	}
	return d, sr, buf
}

func TestStepAwaitingAlreadyConnected(t *testing.T) {
	bt := &fakeBluetooth{connectedSeq: []bool{true}}
	sink := &fakeSink{}
	d, sr, buf := newTestDaemon(bt, sink)

	next := d.stepAwaiting(context.Background())

	assert.Equal(t, stateConnectedStable, next)
	assert.Contains(t, buf.String(), "already connected")
	assert.Equal(t, []string{"bluez_output.AA_BB_CC_DD_EE_FF.1"}, sink.setCalls)
	assert.Zero(t, bt.connectCalls)
	assert.Empty(t, sr.slept)
}

func TestStepAwaitingConnectFailure(t *testing.T) {
	bt := &fakeBluetooth{
		connectedSeq: []bool{false},
		connectErrs:  []error{errors.New("le-connection-abort-by-local")},
	}
	sink := &fakeSink{}
	d, sr, buf := newTestDaemon(bt, sink)

	next := d.stepAwaiting(context.Background())

	assert.Equal(t, stateAwaitingConnection, next)
	assert.Contains(t, buf.String(), "failed")
	assert.Equal(t, []time.Duration{5 * time.Second}, sr.slept)
	assert.Empty(t, sink.setCalls)

	// Next cycle retries the connect.
	d.stepAwaiting(context.Background())
	assert.Equal(t, 2, bt.connectCalls)
}

func TestStepAwaitingConnectVerified(t *testing.T) {
	bt := &fakeBluetooth{connectedSeq: []bool{false, true}}
	sink := &fakeSink{}
	d, sr, buf := newTestDaemon(bt, sink)

	next := d.stepAwaiting(context.Background())

	assert.Equal(t, stateConnectedStable, next)
	assert.Equal(t, 1, bt.connectCalls)
	// Settle period between the connect call and the re-check.
	assert.Equal(t, []time.Duration{3 * time.Second}, sr.slept)
	assert.Equal(t, 1, len(sink.setCalls))
	assert.Contains(t, buf.String(), "connected to AA:BB:CC:DD:EE:FF")
}

func TestStepAwaitingSpuriousConnectSuccess(t *testing.T) {
	// Connect acknowledged, but the post-settle check still reports
	// disconnected: no stabilization, no sink assignment.
	bt := &fakeBluetooth{connectedSeq: []bool{false, false}}
	sink := &fakeSink{}
	d, sr, buf := newTestDaemon(bt, sink)

	next := d.stepAwaiting(context.Background())

	assert.Equal(t, stateAwaitingConnection, next)
	assert.Contains(t, buf.String(), "connect reported success but device not truly connected")
	assert.Equal(t, []time.Duration{3 * time.Second, 5 * time.Second}, sr.slept)
	assert.Empty(t, sink.setCalls)
}

func TestStepAwaitingSinkFailureDoesNotBlock(t *testing.T) {
	bt := &fakeBluetooth{connectedSeq: []bool{true}}
	sink := &fakeSink{setErr: errSinkNotRegistered}
	d, _, buf := newTestDaemon(bt, sink)

	next := d.stepAwaiting(context.Background())

	assert.Equal(t, stateConnectedStable, next)
	assert.Contains(t, buf.String(), "sink not yet registered")
}

func TestStepStable(t *testing.T) {
	t.Run("remains stable while connected", func(t *testing.T) {
		bt := &fakeBluetooth{connectedSeq: []bool{true}}
		d, sr, _ := newTestDaemon(bt, &fakeSink{})

		next := d.stepStable(context.Background())

		assert.Equal(t, stateConnectedStable, next)
		assert.Equal(t, []time.Duration{10 * time.Second}, sr.slept)
	})

	t.Run("disconnect triggers reconnect", func(t *testing.T) {
		bt := &fakeBluetooth{connectedSeq: []bool{false}}
		d, sr, buf := newTestDaemon(bt, &fakeSink{})

		next := d.stepStable(context.Background())

		assert.Equal(t, stateAwaitingConnection, next)
		assert.Contains(t, buf.String(), "disconnected, attempting reconnect")
		// No extra delay beyond the poll interval already elapsed.
		assert.Equal(t, []time.Duration{10 * time.Second}, sr.slept)

		// The next awaiting cycle attempts a connect immediately.
		d.stepAwaiting(context.Background())
		assert.Equal(t, 1, bt.connectCalls)
	})
}

func TestSinkNeverSetWhileDisconnected(t *testing.T) {
	bt := &fakeBluetooth{
		connectedSeq: []bool{false},
		connectErrs:  []error{errors.New("org.bluez.Error.Failed")},
	}
	sink := &fakeSink{}
	d, _, _ := newTestDaemon(bt, sink)

	for i := 0; i < 5; i++ {
		next := d.stepAwaiting(context.Background())
		require.Equal(t, stateAwaitingConnection, next)
	}
	assert.Empty(t, sink.setCalls)
}

func TestWaitForBluetoothReady(t *testing.T) {
	// Powered after two failed polls: two waiting lines, two sleeps.
	bt := &fakeBluetooth{powered: []bool{false, false, true}}
	d, sr, buf := newTestDaemon(bt, &fakeSink{})

	ok := d.waitForBluetoothReady(context.Background())

	require.True(t, ok)
	assert.Equal(t, 2, strings.Count(buf.String(), "waiting for bluetooth adapter"))
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sr.slept)
}

func TestWaitForAudioReady(t *testing.T) {
	sink := &fakeSink{backends: []Backend{BackendNone, BackendNone, BackendPipeWire}}
	d, sr, buf := newTestDaemon(&fakeBluetooth{}, sink)

	ok := d.waitForAudioReady(context.Background())

	require.True(t, ok)
	assert.Equal(t, 2, strings.Count(buf.String(), "waiting for audio server"))
	assert.Equal(t, []time.Duration{audioReadyPoll, audioReadyPoll}, sr.slept)
}

func TestRunReturnsOnCancel(t *testing.T) {
	bt := &fakeBluetooth{powered: []bool{true}, connectedSeq: []bool{true}}
	d, _, _ := newTestDaemon(bt, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.run(ctx) // must return promptly instead of looping forever
}

func TestCtxSleep(t *testing.T) {
	t.Run("elapses", func(t *testing.T) {
		assert.True(t, ctxSleep(context.Background(), time.Millisecond))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, ctxSleep(ctx, time.Hour))
	})
}
