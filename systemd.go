package main

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	systemdBus   = "org.freedesktop.systemd1"
	systemdPath  = "/org/freedesktop/systemd1"
	managerIface = "org.freedesktop.systemd1.Manager"
	unitIface    = "org.freedesktop.systemd1.Unit"

	bluetoothUnit = "bluetooth.service"
)

// Audio server units probed in order; PulseAudio first so that it wins
// when both servers report active.
var (
	pulseAudioUnit = "pulseaudio.service"
	pipeWireUnits  = []string{"pipewire-pulse.service", "pipewire.service"}
)

// unitProber reports whether a systemd unit is currently active.
type unitProber interface {
	active(unit string) (bool, error)
}

// systemdConn wraps a D-Bus connection for systemd unit state queries.
// bluetooth.service lives on the system bus; the audio servers are user
// units on the session bus.
type systemdConn struct {
	conn *dbus.Conn
}

func newSystemUnits() (*systemdConn, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return &systemdConn{conn: conn}, nil
}

func newSessionUnits() (*systemdConn, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return &systemdConn{conn: conn}, nil
}

func (s *systemdConn) active(unit string) (bool, error) {
	var unitPath dbus.ObjectPath
	mgr := s.conn.Object(systemdBus, dbus.ObjectPath(systemdPath))
	if err := mgr.Call(managerIface+".GetUnit", 0, unit).Store(&unitPath); err != nil {
		// systemd reports unloaded units as an error, not a state.
		return false, nil
	}
	var v dbus.Variant
	err := s.conn.Object(systemdBus, unitPath).Call(propsIface+".Get", 0, unitIface, "ActiveState").Store(&v)
	if err != nil {
		return false, fmt.Errorf("query %s state: %w", unit, err)
	}
	state, ok := v.Value().(string)
	if !ok {
		return false, fmt.Errorf("ActiveState of %s is not a string", unit)
	}
	return state == "active", nil
}
