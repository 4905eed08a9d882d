package meshlevel

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/probelab/dockprobe/coord"
	"github.com/probelab/dockprobe/dock"
	"github.com/probelab/dockprobe/machine"
)

// A PointProber performs one trigger measurement at the current x/y and
// returns the toolhead position at the trigger. The generic probing
// protocol behind it is external.
type PointProber interface {
	ProbePoint() (machine.Position, error)
}

// ProberFunc adapts a function to the PointProber interface.
type ProberFunc func() (machine.Position, error)

func (f ProberFunc) ProbePoint() (machine.Position, error) { return f() }

// GridOptions configure a grid probing run.
type GridOptions struct {
	// Origin is the first grid corner.
	OriginX, OriginY float64
	// DistanceX/Y span the grid from the origin.
	DistanceX, DistanceY float64
	// CountX/Y are the number of points per side (min 2).
	CountX, CountY int
}

func (opt GridOptions) validate() error {
	if opt.CountX < 2 || opt.CountY < 2 {
		return fmt.Errorf("grid needs at least 2x2 points, have %dx%d", opt.CountX, opt.CountY)
	}
	if opt.DistanceX <= 0 || opt.DistanceY <= 0 {
		return fmt.Errorf("grid distances must be positive")
	}
	return nil
}

// A GridProber probes a grid of bed points through one docking session:
// the probe attaches before the first point, stays attached for the whole
// grid, and docks once at the end.
type GridProber struct {
	session *dock.Session
	th      machine.Toolhead
	cfg     dock.Config
	prober  PointProber
	log     zerolog.Logger
}

func NewGridProber(session *dock.Session, th machine.Toolhead, cfg dock.Config, prober PointProber, log zerolog.Logger) *GridProber {
	return &GridProber{session: session, th: th, cfg: cfg, prober: prober, log: log}
}

// Probe measures every grid point and returns the measured bed heights,
// corrected for the probe's x/y/z offsets.
func (g *GridProber) Probe(opt GridOptions) ([]coord.Point, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}

	if err := g.session.Begin(); err != nil {
		return nil, err
	}

	points, err := g.probeGrid(opt)

	// Session end runs even after a failed point, so the probe is not
	// left attached half way across the bed.
	if endErr := g.session.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return nil, err
	}
	g.log.Info().Int("points", len(points)).Msg("grid probe complete")
	return points, nil
}

func (g *GridProber) probeGrid(opt GridOptions) ([]coord.Point, error) {
	points := make([]coord.Point, 0, opt.CountX*opt.CountY)
	for yi := 0; yi < opt.CountY; yi++ {
		for xi := 0; xi < opt.CountX; xi++ {
			// serpentine pattern to cut travel time
			col := xi
			if yi%2 != 0 {
				col = opt.CountX - 1 - xi
			}
			x := opt.OriginX + opt.DistanceX/float64(opt.CountX-1)*float64(col)
			y := opt.OriginY + opt.DistanceY/float64(opt.CountY-1)*float64(yi)

			p, err := g.probeOne(x, y)
			if err != nil {
				return nil, fmt.Errorf("probe point (%g,%g): %w", x, y, err)
			}
			points = append(points, p)
		}
	}
	return points, nil
}

func (g *GridProber) probeOne(x, y float64) (coord.Point, error) {
	// The probe hangs offset from the nozzle; aim the probe, not the
	// nozzle, at the requested point.
	err := g.th.ManualMove(coord.MoveXY(x-g.cfg.XOffset, y-g.cfg.YOffset), g.cfg.TravelSpeed)
	if err != nil {
		return coord.Point{}, err
	}

	if err := g.session.Prepare(); err != nil {
		return coord.Point{}, err
	}

	pos, err := g.prober.ProbePoint()
	if err != nil {
		return coord.Point{}, err
	}

	// lift off the trigger point before the next move
	err = g.th.ManualMove(coord.MoveZ(pos.Z+g.cfg.SampleRetractDist), g.cfg.LiftSpeed)
	if err != nil {
		return coord.Point{}, err
	}

	if err := g.session.Finish(); err != nil {
		return coord.Point{}, err
	}

	return coord.Point{X: x, Y: y, Z: pos.Z - g.cfg.ZOffset}, nil
}
