package main

// ConnectionState is the device's connection state as reported by the
// Bluetooth stack. It is derived fresh on every query and never cached.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnected    ConnectionState = "connected"
)

// Backend identifies the audio server currently active in the session.
type Backend string

const (
	BackendNone       Backend = "none"
	BackendPulseAudio Backend = "pulseaudio"
	BackendPipeWire   Backend = "pipewire"
)

// loopState names the reconciliation loop's position.
type loopState int

const (
	stateAwaitingConnection loopState = iota
	stateConnectedStable
)
