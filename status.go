package main

import (
	"encoding/json"
	"os"
)

// statusReport is printed by the status subcommand. Queries go straight to
// BlueZ and the audio server; the running daemon is not involved.
type statusReport struct {
	AdapterPowered  bool   `json:"adapter_powered"`
	Device          string `json:"device"`
	State           string `json:"state"`
	Backend         string `json:"backend"`
	DefaultSink     string `json:"default_sink,omitempty"`
	TargetIsDefault bool   `json:"target_is_default"`
}

func runStatus(configFlag string) error {
	cfg, err := loadConfig(configPath(configFlag))
	if err != nil {
		return err
	}

	bz, err := newBluez()
	if err != nil {
		return err
	}
	defer bz.close()

	sessUnits, err := newSessionUnits()
	if err != nil {
		return err
	}
	audio := newAudioController(sessUnits)

	var rep statusReport
	rep.AdapterPowered, _ = bz.adapterPowered()
	rep.Device = cfg.Device.Address
	rep.State = string(bz.resolveState(cfg.Device.Address))
	rep.Backend = string(audio.detectBackend())
	if sink, err := audio.defaultSink(); err == nil {
		rep.DefaultSink = sink
		rep.TargetIsDefault = sink == cfg.Device.Sink
	}

	return json.NewEncoder(os.Stdout).Encode(rep)
}
