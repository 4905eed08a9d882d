// Package dock drives the attach and dock motion sequences for a
// magnetically-coupled probe stowed in a fixed dock.
package dock

import (
	"errors"
	"fmt"

	"github.com/probelab/dockprobe/coord"
)

// Config holds the docking parameters. It is built once at startup and
// never mutated afterward; the only runtime-togglable policy
// (auto attach/dock) lives on the Controller.
type Config struct {
	// ZOffset is the probe trigger distance from the nozzle.
	ZOffset          float64
	XOffset, YOffset float64

	Speed       float64
	LiftSpeed   float64
	TravelSpeed float64
	AttachSpeed float64
	DockSpeed   float64

	// DockRetries is how many extra full route traversals an attach or
	// dock operation may make after the first one fails.
	DockRetries int

	AutoAttachDock bool

	// ZHop is the vertical clearance taken before attach/dock motion.
	// Zero disables the hop.
	ZHop float64

	// SampleRetractDist is how far the toolhead lifts between probe
	// samples.
	SampleRetractDist float64

	AttachRoute coord.Route
	DockRoute   coord.Route
}

// DefaultConfig returns a Config with the layered speed defaults unset;
// Validate resolves them.
func DefaultConfig() Config {
	return Config{
		Speed:             5,
		AutoAttachDock:    true,
		SampleRetractDist: 2,
	}
}

// Validate checks the configuration and resolves layered speed defaults.
func (c *Config) Validate() error {
	if c.Speed <= 0 {
		return errors.New("speed must be positive")
	}
	if c.LiftSpeed == 0 {
		c.LiftSpeed = c.Speed
	}
	if c.TravelSpeed == 0 {
		c.TravelSpeed = c.Speed
	}
	if c.AttachSpeed == 0 {
		c.AttachSpeed = c.TravelSpeed
	}
	if c.DockSpeed == 0 {
		c.DockSpeed = c.TravelSpeed
	}
	for _, v := range []float64{c.LiftSpeed, c.TravelSpeed, c.AttachSpeed, c.DockSpeed} {
		if v <= 0 {
			return errors.New("speeds must be positive")
		}
	}
	if c.DockRetries < 0 {
		return errors.New("dock_retries must not be negative")
	}
	if c.ZHop < 0 {
		return errors.New("z_hop must not be negative")
	}
	if c.SampleRetractDist <= 0 {
		return errors.New("sample_retract_dist must be positive")
	}
	if len(c.AttachRoute) == 0 {
		return fmt.Errorf("attach_route is required")
	}
	if len(c.DockRoute) == 0 {
		return fmt.Errorf("dock_route is required")
	}
	return nil
}

// RequiresZ reports whether any waypoint in either route carries a Z
// component, in which case the z axis must be homed before traversal.
func (c Config) RequiresZ() bool {
	return c.AttachRoute.RequiresZ() || c.DockRoute.RequiresZ()
}
