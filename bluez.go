package main

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName      = "org.bluez"
	adapterPath  = "/org/bluez/hci0"
	adapterIface = "org.bluez.Adapter1"
	deviceIface  = "org.bluez.Device1"
	propsIface   = "org.freedesktop.DBus.Properties"
)

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(addr, ":", "_")
	return dbus.ObjectPath(adapterPath + "/dev_" + escaped)
}

// bluetoothController is the slice of the Bluetooth stack the
// reconciliation loop needs. Tests substitute a scripted fake.
type bluetoothController interface {
	adapterPowered() (bool, error)
	connected(addr string) (bool, error)
	connect(addr string) error
}

// bluez wraps a system D-Bus connection for BlueZ operations.
type bluez struct {
	conn *dbus.Conn
}

func newBluez() (*bluez, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return &bluez{conn: conn}, nil
}

func (b *bluez) close() {
	b.conn.Close()
}

// --- property helpers ---

func (b *bluez) getProp(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	obj := b.conn.Object(busName, path)
	var v dbus.Variant
	err := obj.Call(propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (b *bluez) getBool(path dbus.ObjectPath, iface, prop string) (bool, error) {
	v, err := b.getProp(path, iface, prop)
	if err != nil {
		return false, err
	}
	val, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s is not bool", prop)
	}
	return val, nil
}

// --- adapter ---

func (b *bluez) adapterPowered() (bool, error) {
	return b.getBool(adapterPath, adapterIface, "Powered")
}

// --- device ---

func (b *bluez) connected(addr string) (bool, error) {
	return b.getBool(deviceObjectPath(addr), deviceIface, "Connected")
}

// resolveState maps the Connected property to a ConnectionState; query
// failures count as disconnected.
func (b *bluez) resolveState(addr string) ConnectionState {
	on, err := b.connected(addr)
	if err == nil && on {
		return StateConnected
	}
	return StateDisconnected
}

// connect issues Device1.Connect. Success means BlueZ acknowledged the
// call; the device-side link may still take a moment to come up, so the
// caller re-verifies after a settle period.
func (b *bluez) connect(addr string) error {
	obj := b.conn.Object(busName, deviceObjectPath(addr))
	return obj.Call(deviceIface+".Connect", 0).Err
}
