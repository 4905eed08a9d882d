package sense

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/probelab/dockprobe/machine"
)

// Status is the resolved probe attachment state.
type Status int

const (
	StatusUnknown Status = iota
	StatusAttached
	StatusDocked
)

func (s Status) String() string {
	switch s {
	case StatusAttached:
		return "ATTACHED"
	case StatusDocked:
		return "DOCKED"
	}
	return "UNKNOWN"
}

// Strategy identifies how the verifier resolves attachment status. It is
// fixed once at construction.
type Strategy int

const (
	// StrategyDualSensor uses dedicated attach-sense and dock-sense pins.
	StrategyDualSensor Strategy = iota
	// StrategySingleSensorOpen reads the probe's own line, open-when-attached.
	StrategySingleSensorOpen
	// StrategySingleSensorClosed reads an attach-sense signal directly.
	StrategySingleSensorClosed
	// StrategyFallback pairs a dock-sense pin with an attach signal
	// inferred from the probe's endstop circuit (lower confidence).
	StrategyFallback
)

func (s Strategy) String() string {
	switch s {
	case StrategyDualSensor:
		return "dual-sensor"
	case StrategySingleSensorOpen:
		return "single-sensor-open"
	case StrategySingleSensorClosed:
		return "single-sensor-closed"
	}
	return "fallback"
}

// ErrNoVerifyMethod is returned when the configuration provides no way to
// verify probe attachment. Ambiguous hardware wiring must not silently
// default.
var ErrNoVerifyMethod = errors.New(
	"no attachment verification method: one of check_open_attach, probe_sense_pin or dock_sense_pin is required")

// VerifierConfig selects the sensor sources for attachment verification.
type VerifierConfig struct {
	// ProbeEndstop is the probe's own trigger line. Always present; used
	// as the attach signal when no dedicated sense pin applies.
	ProbeEndstop machine.EndstopQuerier

	// ProbeSense is an optional dedicated attach-sense pin.
	ProbeSense machine.EndstopQuerier

	// DockSense is an optional dedicated dock-sense pin.
	DockSense machine.EndstopQuerier

	// CheckOpenAttach, when set, reads attachment from the probe's own
	// line: true means the circuit is open while attached. It takes
	// precedence over ProbeSense.
	CheckOpenAttach *bool
}

// A Verifier resolves one or two debounced pin readings into a tri-state
// attachment status. The resolved value is cached with the same lifetime as
// the pin samples themselves.
type Verifier struct {
	strategy     Strategy
	attach       *Poller
	attachInvert bool
	dock         *Poller

	last     Status
	lastTime time.Time

	log zerolog.Logger
}

// NewVerifier builds a Verifier with a resolution strategy fixed from cfg.
// It fails when no verification source is configured at all.
func NewVerifier(cfg VerifierConfig, log zerolog.Logger) (*Verifier, error) {
	if cfg.CheckOpenAttach == nil && cfg.ProbeSense == nil && cfg.DockSense == nil {
		return nil, ErrNoVerifyMethod
	}

	v := &Verifier{log: log}

	// Attach signal precedence: check_open_attach beats a dedicated
	// sense pin, which beats the endstop-inferred fallback.
	switch {
	case cfg.CheckOpenAttach != nil:
		v.attach = NewPoller(cfg.ProbeEndstop)
		v.attachInvert = *cfg.CheckOpenAttach
		if v.attachInvert {
			v.strategy = StrategySingleSensorOpen
		} else {
			v.strategy = StrategySingleSensorClosed
		}
	case cfg.ProbeSense != nil:
		v.attach = NewPoller(cfg.ProbeSense)
		v.strategy = StrategySingleSensorClosed
	default:
		v.attach = NewPoller(cfg.ProbeEndstop)
		v.attachInvert = true
		v.strategy = StrategyFallback
	}

	if cfg.DockSense != nil {
		v.dock = NewPoller(cfg.DockSense)
		if v.strategy != StrategyFallback {
			v.strategy = StrategyDualSensor
		}
	}

	log.Debug().Stringer("strategy", v.strategy).Msg("attachment verifier configured")
	return v, nil
}

// Strategy returns the resolution strategy chosen at construction.
func (v *Verifier) Strategy() Strategy { return v.strategy }

// Status resolves the current attachment status, re-deriving from the pins
// when the cached value is stale or Unknown.
func (v *Verifier) Status(now time.Time) Status {
	if v.last == StatusUnknown || now.After(v.lastTime.Add(PollInterval)) {
		v.lastTime = now
		prev := v.last
		v.last = v.resolve(now)
		if v.last != prev {
			v.log.Debug().Stringer("status", v.last).Msg("attachment status changed")
		}
	}
	return v.last
}

func (v *Verifier) resolve(now time.Time) Status {
	a := v.attach.Read(now)
	if v.attachInvert {
		a = !a
	}

	if v.dock != nil {
		d := v.dock.Read(now)
		switch {
		case a && !d:
			return StatusAttached
		case d && !a:
			return StatusDocked
		}
		// Both or neither tripped: in-transit or ambiguous.
		return StatusUnknown
	}

	if a {
		return StatusAttached
	}
	return StatusDocked
}

// Reset drops the cached status back to Unknown. Called on system-ready
// events so stale pre-restart readings are never trusted.
func (v *Verifier) Reset() {
	v.last = StatusUnknown
	v.lastTime = time.Time{}
}
