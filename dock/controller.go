package dock

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/probelab/dockprobe/coord"
	"github.com/probelab/dockprobe/machine"
	"github.com/probelab/dockprobe/sense"
)

var (
	// ErrNotInDock means the probe was not found docked before an attach
	// attempt. There is no recovery path from an indeterminate pre-state.
	ErrNotInDock = errors.New("probe not detected in dock")

	ErrAttachFailed = errors.New("probe attach failed")
	ErrDockFailed   = errors.New("probe dock failed")

	// ErrZNotHomed means a route carries a Z coordinate but the z axis
	// has no valid origin yet.
	ErrZNotHomed = errors.New("cannot attach/detach probe, must home z axis first")

	ErrAutoAttachDisabled = errors.New("cannot probe, probe is not attached and auto-attach is disabled")

	// ErrVirtualZEndstop rejects homing z off the probe's own line while
	// a route expects to command the z axis.
	ErrVirtualZEndstop = errors.New("z endstop on the probe line is incompatible with a z coordinate in attach_route/dock_route")
)

// ControllerOptions configure a docking Controller.
type ControllerOptions struct {
	Config   Config
	Toolhead machine.Toolhead
	Verifier *sense.Verifier

	// ZEndstopIsProbe marks setups that home z off the probe's own
	// trigger line (a virtual z endstop).
	ZEndstopIsProbe bool

	// Now supplies the clock; defaults to time.Now.
	Now func() time.Time

	Logger zerolog.Logger
}

// A Controller drives the attach/dock state machine. Status transitions
// happen only through re-verification after motion; motion code never sets
// the attachment state directly.
type Controller struct {
	cfg      Config
	th       machine.Toolhead
	verifier *sense.Verifier
	now      func() time.Time
	log      zerolog.Logger

	requiresZ      bool
	autoAttachDock bool

	// lastForcedZ guards the forced hop against repeating when the true
	// z position has not moved since the last one.
	lastForcedZ float64

	lastStatus sense.Status
}

// NewController validates the configuration and builds a Controller.
func NewController(opts ControllerOptions) (*Controller, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("docking config: %w", err)
	}
	if opts.ZEndstopIsProbe && cfg.ZHop > 0 && cfg.RequiresZ() {
		return nil, ErrVirtualZEndstop
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		cfg:            cfg,
		th:             opts.Toolhead,
		verifier:       opts.Verifier,
		now:            now,
		log:            opts.Logger,
		requiresZ:      cfg.RequiresZ(),
		autoAttachDock: cfg.AutoAttachDock,
		lastForcedZ:    math.NaN(),
	}, nil
}

// Config returns the immutable docking configuration.
func (c *Controller) Config() Config { return c.cfg }

// HandleReady resets the attachment cache on a system-ready event.
func (c *Controller) HandleReady() { c.verifier.Reset() }

// AutoAttachDock reports the current auto attach/dock policy.
func (c *Controller) AutoAttachDock() bool { return c.autoAttachDock }

// SetAutoAttachDock toggles the auto attach/dock policy.
func (c *Controller) SetAutoAttachDock(v bool) {
	c.autoAttachDock = v
	c.log.Info().Bool("auto_attach_dock", v).Msg("auto attach/dock policy changed")
}

func (c *Controller) status() sense.Status {
	return c.verifier.Status(c.now())
}

// QueryStatus re-verifies and records the attachment status. This is the
// QUERY command surface; LastStatus reports the recorded value.
func (c *Controller) QueryStatus() sense.Status {
	c.lastStatus = c.status()
	return c.lastStatus
}

// LastStatus returns the last status recorded by QueryStatus.
func (c *Controller) LastStatus() sense.Status { return c.lastStatus }

// Attach couples the probe to the toolhead: align, traverse the attach
// route, re-verify, with at most DockRetries+1 traversals. On success only
// x/y of returnPos are restored; z stays up so the now-coupled probe
// cannot be driven into the bed at an old height.
func (c *Controller) Attach(returnPos *machine.Position) error {
	for retry := 0; c.status() != sense.StatusAttached && retry < c.cfg.DockRetries+1; retry++ {
		if c.status() != sense.StatusDocked {
			return fmt.Errorf("attach probe: %w", ErrNotInDock)
		}
		if err := c.alignZ(); err != nil {
			return err
		}
		if retry > 0 {
			c.log.Warn().Int("retry", retry).Msg("retrying probe attach")
		}
		if err := c.traverse(c.cfg.AttachRoute, c.cfg.AttachSpeed); err != nil {
			return err
		}
	}

	if c.status() != sense.StatusAttached {
		return ErrAttachFailed
	}
	c.log.Info().Msg("probe attached")

	if err := c.alignZ(); err != nil {
		return err
	}
	if returnPos != nil {
		return c.th.ManualMove(coord.MoveXY(returnPos.X, returnPos.Y), c.cfg.TravelSpeed)
	}
	return nil
}

// Dock stows the probe back in the dock, symmetric to Attach. On success
// returnPos is restored fully, x/y then z: with the probe stowed there is
// no collision hazard.
func (c *Controller) Dock(returnPos *machine.Position) error {
	for retry := 0; c.status() != sense.StatusDocked && retry < c.cfg.DockRetries+1; retry++ {
		if err := c.alignZ(); err != nil {
			return err
		}
		if retry > 0 {
			c.log.Warn().Int("retry", retry).Msg("retrying probe dock")
		}
		if err := c.traverse(c.cfg.DockRoute, c.cfg.DockSpeed); err != nil {
			return err
		}
	}

	if c.status() != sense.StatusDocked {
		return ErrDockFailed
	}
	c.log.Info().Msg("probe docked")

	if err := c.alignZ(); err != nil {
		return err
	}
	if returnPos != nil {
		if err := c.th.ManualMove(coord.MoveXY(returnPos.X, returnPos.Y), c.cfg.TravelSpeed); err != nil {
			return err
		}
		return c.th.ManualMove(coord.MoveZ(returnPos.Z), c.cfg.TravelSpeed)
	}
	return nil
}

// AutoAttach is a no-op when already attached. With auto attach/dock
// disabled it fails: probing without an attached probe is never allowed.
func (c *Controller) AutoAttach(returnPos *machine.Position) error {
	if c.status() == sense.StatusAttached {
		return nil
	}
	if !c.autoAttachDock {
		return ErrAutoAttachDisabled
	}
	return c.Attach(returnPos)
}

// AutoDock is a no-op when already docked, and silently skips when auto
// attach/dock is disabled: docking is optional policy.
func (c *Controller) AutoDock(returnPos *machine.Position) error {
	if c.status() == sense.StatusDocked {
		return nil
	}
	if !c.autoAttachDock {
		return nil
	}
	return c.Dock(returnPos)
}

// traverse follows a route, first waypoint at travel speed and the rest at
// the route's own speed. Each move blocks until motion completes.
func (c *Controller) traverse(route coord.Route, routeSpeed float64) error {
	speed := c.cfg.TravelSpeed
	for _, wp := range route {
		if err := c.th.ManualMove(wp.Move(), speed); err != nil {
			return err
		}
		speed = routeSpeed
	}
	return nil
}

// alignZ re-reads the homed axes and establishes vertical clearance before
// any attach/dock motion. It always runs before route traversal.
func (c *Controller) alignZ() error {
	st := c.th.Status(c.now())

	if c.requiresZ && !st.Homed('z') {
		return ErrZNotHomed
	}

	if c.cfg.ZHop <= 0 {
		return nil
	}
	if st.Homed('z') {
		if c.th.Position().Z < c.cfg.ZHop {
			return c.th.ManualMove(coord.MoveZ(c.cfg.ZHop), c.cfg.LiftSpeed)
		}
		return nil
	}
	return c.forceZHop()
}

// forceZHop lifts by the hop height from a provisional origin when z is not
// homed, then marks z unhomed again: the hop is a safety clearance, not a
// homing operation. Skipped when the true z has not changed since the last
// forced hop.
func (c *Controller) forceZHop() error {
	pos := c.th.Position()
	if c.lastForcedZ == pos.Z {
		return nil
	}

	c.th.SetPosition(machine.Position{X: pos.X, Y: pos.Y, Z: 0, E: pos.E}, []int{2})
	if err := c.th.ManualMove(coord.MoveZ(c.cfg.ZHop), c.cfg.LiftSpeed); err != nil {
		return err
	}
	c.th.NoteZNotHomed()
	c.lastForcedZ = c.th.Position().Z
	return nil
}
