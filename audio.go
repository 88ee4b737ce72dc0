package main

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// commandRunner abstracts external command invocation so tests can record
// calls and substitute canned output.
type commandRunner interface {
	run(name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) run(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).CombinedOutput()
	return string(out), err
}

// Failure reasons the reconciliation loop distinguishes in its log lines.
var (
	errNoBackend         = errors.New("no audio backend active")
	errSinkNotRegistered = errors.New("sink not yet registered")
)

// sinkSelector is the slice of the audio server the reconciliation loop
// needs.
type sinkSelector interface {
	detectBackend() Backend
	setDefaultSink(sink string) error
}

// audioController routes default audio output through whichever audio
// server is active in the session.
type audioController struct {
	units unitProber
	run   commandRunner
}

func newAudioController(units unitProber) *audioController {
	return &audioController{units: units, run: execRunner{}}
}

// detectBackend probes PulseAudio before PipeWire: when both report active
// (migration setups), PulseAudio wins.
func (a *audioController) detectBackend() Backend {
	if on, err := a.units.active(pulseAudioUnit); err == nil && on {
		return BackendPulseAudio
	}
	for _, unit := range pipeWireUnits {
		if on, err := a.units.active(unit); err == nil && on {
			return BackendPipeWire
		}
	}
	return BackendNone
}

// listSinks returns the sink names the server currently knows.
func (a *audioController) listSinks() ([]string, error) {
	out, err := a.run.run("pactl", "list", "short", "sinks")
	if err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			names = append(names, fields[1])
		}
	}
	return names, nil
}

// setDefaultSink makes sink the server's default output. Under PulseAudio
// the sink is assumed to exist once the server itself is up. Under PipeWire
// the sink must already be registered — right after a Bluetooth connect the
// endpoint can take a moment to appear, so an absent sink is reported as
// errSinkNotRegistered without issuing the set command.
func (a *audioController) setDefaultSink(sink string) error {
	switch a.detectBackend() {
	case BackendPulseAudio:
	case BackendPipeWire:
		names, err := a.listSinks()
		if err != nil {
			return err
		}
		found := false
		for _, n := range names {
			if n == sink {
				found = true
				break
			}
		}
		if !found {
			return errSinkNotRegistered
		}
	default:
		return errNoBackend
	}

	out, err := a.run.run("pactl", "set-default-sink", sink)
	if err != nil {
		return fmt.Errorf("set-default-sink: %w (%s)", err, strings.TrimSpace(out))
	}
	return nil
}

// defaultSink reports the server's current default sink name.
func (a *audioController) defaultSink() (string, error) {
	out, err := a.run.run("pactl", "get-default-sink")
	if err != nil {
		return "", fmt.Errorf("get-default-sink: %w", err)
	}
	return strings.TrimSpace(out), nil
}
