package main

import (
	"errors"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/probelab/dockprobe/coord"
	"github.com/probelab/dockprobe/dock"
)

// fileConfig mirrors the daemon configuration for TOML decoding.
type fileConfig struct {
	// connection
	SerialPort string `toml:"serial_port"`
	Baud       int    `toml:"baud"`
	SPJSURL    string `toml:"spjs_url"`
	Addr       string `toml:"addr"`
	Sim        bool   `toml:"sim"`

	// pins, by grbl Pn: report letter
	ProbeSensePin string `toml:"probe_sense_pin"`
	DockSensePin  string `toml:"dock_sense_pin"`

	CheckOpenAttach *bool `toml:"check_open_attach"`
	ZEndstopIsProbe bool  `toml:"z_endstop_is_probe"`

	// docking
	ZOffset           *float64    `toml:"z_offset"`
	XOffset           float64     `toml:"x_offset"`
	YOffset           float64     `toml:"y_offset"`
	Speed             float64     `toml:"speed"`
	LiftSpeed         float64     `toml:"lift_speed"`
	TravelSpeed       float64     `toml:"travel_speed"`
	AttachSpeed       float64     `toml:"attach_speed"`
	DockSpeed         float64     `toml:"dock_speed"`
	DockRetries       int         `toml:"dock_retries"`
	AutoAttachDock    *bool       `toml:"auto_attach_dock"`
	ZHop              float64     `toml:"z_hop"`
	SampleRetractDist float64     `toml:"sample_retract_dist"`
	AttachRoute       [][]float64 `toml:"attach_route"`
	DockRoute         [][]float64 `toml:"dock_route"`

	// probing
	ProbeDepth float64 `toml:"probe_depth"`
	ProbeSpeed float64 `toml:"probe_speed"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// dockConfig converts the file values into a validated docking config.
func (fc fileConfig) dockConfig() (dock.Config, error) {
	cfg := dock.DefaultConfig()

	if fc.ZOffset == nil {
		return cfg, errors.New("z_offset is required")
	}
	cfg.ZOffset = *fc.ZOffset
	cfg.XOffset = fc.XOffset
	cfg.YOffset = fc.YOffset

	if fc.Speed != 0 {
		cfg.Speed = fc.Speed
	}
	cfg.LiftSpeed = fc.LiftSpeed
	cfg.TravelSpeed = fc.TravelSpeed
	cfg.AttachSpeed = fc.AttachSpeed
	cfg.DockSpeed = fc.DockSpeed
	cfg.DockRetries = fc.DockRetries
	if fc.AutoAttachDock != nil {
		cfg.AutoAttachDock = *fc.AutoAttachDock
	}
	cfg.ZHop = fc.ZHop
	if fc.SampleRetractDist != 0 {
		cfg.SampleRetractDist = fc.SampleRetractDist
	}

	var err error
	cfg.AttachRoute, err = coord.ParseRoute(fc.AttachRoute)
	if err != nil {
		return cfg, fmt.Errorf("attach_route: %w", err)
	}
	cfg.DockRoute, err = coord.ParseRoute(fc.DockRoute)
	if err != nil {
		return cfg, fmt.Errorf("dock_route: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (fc fileConfig) pinLetter(s string) (byte, error) {
	if len(s) != 1 {
		return 0, fmt.Errorf("pin must be a single grbl pin letter, got %q", s)
	}
	return s[0], nil
}
