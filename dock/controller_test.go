package dock

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/dockprobe/coord"
	"github.com/probelab/dockprobe/machine"
	"github.com/probelab/dockprobe/sense"
)

// testWorld wraps a simulated toolhead and flips the sense pins once a
// route has been fully traversed a configured number of times. A traversal
// is recognized by its final two waypoints in order, so mirrored attach and
// dock routes don't shadow each other.
type testWorld struct {
	*machine.Sim

	attachRoute, dockRoute coord.Route

	prevXY *coord.Waypoint

	attachTraversals int
	dockTraversals   int

	// attachAfter / dockAfter: number of traversals after which the
	// probe reads attached / docked. Zero means never.
	attachAfter, dockAfter int

	attached, docked bool
}

func routeEndPair(r coord.Route, prev *coord.Waypoint, x, y float64) bool {
	if len(r) < 2 || prev == nil {
		return false
	}
	a, b := r[len(r)-2], r[len(r)-1]
	return prev.X == a.X && prev.Y == a.Y && x == b.X && y == b.Y
}

func (w *testWorld) ManualMove(m coord.Move, speed float64) error {
	if err := w.Sim.ManualMove(m, speed); err != nil {
		return err
	}
	if m.X == nil || m.Y == nil {
		return nil
	}
	switch {
	case routeEndPair(w.attachRoute, w.prevXY, *m.X, *m.Y):
		w.attachTraversals++
		if w.attachAfter > 0 && w.attachTraversals >= w.attachAfter {
			w.attached, w.docked = true, false
		}
	case routeEndPair(w.dockRoute, w.prevXY, *m.X, *m.Y):
		w.dockTraversals++
		if w.dockAfter > 0 && w.dockTraversals >= w.dockAfter {
			w.attached, w.docked = false, true
		}
	}
	w.prevXY = &coord.Waypoint{X: *m.X, Y: *m.Y}
	return nil
}

// testClock returns a clock that advances past the poll interval on every
// read, so each verification resolves fresh pin state.
func testClock() func() time.Time {
	t := time.Now()
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func testRoutes(t *testing.T) (attach, dock coord.Route) {
	t.Helper()
	attach, err := coord.ParseRoute([][]float64{{228, 15}, {228, 5}, {215, 5}})
	require.NoError(t, err)
	dock, err = coord.ParseRoute([][]float64{{215, 5}, {228, 5}, {228, 15}})
	require.NoError(t, err)
	return attach, dock
}

func newTestController(t *testing.T, cfg Config, w *testWorld) *Controller {
	t.Helper()

	v, err := sense.NewVerifier(sense.VerifierConfig{
		ProbeEndstop: machine.QuerierFunc(func(time.Time) bool { return false }),
		ProbeSense:   machine.QuerierFunc(func(time.Time) bool { return w.attached }),
		DockSense:    machine.QuerierFunc(func(time.Time) bool { return w.docked }),
	}, zerolog.Nop())
	require.NoError(t, err)

	c, err := NewController(ControllerOptions{
		Config:   cfg,
		Toolhead: w,
		Verifier: v,
		Now:      testClock(),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

func newTestWorld(t *testing.T) (*testWorld, Config) {
	t.Helper()
	attach, dockRoute := testRoutes(t)
	cfg := DefaultConfig()
	cfg.ZOffset = 1.5
	cfg.AttachRoute = attach
	cfg.DockRoute = dockRoute

	w := &testWorld{
		Sim:         machine.NewSim(),
		attachRoute: attach,
		dockRoute:   dockRoute,
		docked:      true,
	}
	return w, cfg
}

func TestController_AttachRetryBound(t *testing.T) {
	t.Run("succeeds on final attempt", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		cfg.DockRetries = 2
		w.attachAfter = 3

		c := newTestController(t, cfg, w)
		require.NoError(t, c.Attach(nil))
		assert.Equal(t, 3, w.attachTraversals)
	})

	t.Run("fails after exactly retries+1 attempts", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		cfg.DockRetries = 2
		// probe never attaches

		c := newTestController(t, cfg, w)
		assert.ErrorIs(t, c.Attach(nil), ErrAttachFailed)
		assert.Equal(t, 3, w.attachTraversals)
	})

	t.Run("single attempt with zero retries", func(t *testing.T) {
		w, cfg := newTestWorld(t)

		c := newTestController(t, cfg, w)
		assert.ErrorIs(t, c.Attach(nil), ErrAttachFailed)
		assert.Equal(t, 1, w.attachTraversals)
	})
}

func TestController_AttachRequiresDockedPreState(t *testing.T) {
	w, cfg := newTestWorld(t)
	w.docked = false // neither attached nor docked

	c := newTestController(t, cfg, w)
	assert.ErrorIs(t, c.Attach(nil), ErrNotInDock)
	assert.Zero(t, w.attachTraversals)
}

func TestController_AttachAlreadyAttached(t *testing.T) {
	w, cfg := newTestWorld(t)
	w.attached, w.docked = true, false

	c := newTestController(t, cfg, w)
	require.NoError(t, c.Attach(nil))
	assert.Zero(t, w.attachTraversals)
}

func TestController_DockRetryBound(t *testing.T) {
	w, cfg := newTestWorld(t)
	cfg.DockRetries = 1
	w.attached, w.docked = true, false
	w.dockAfter = 2

	c := newTestController(t, cfg, w)
	require.NoError(t, c.Dock(nil))
	assert.Equal(t, 2, w.dockTraversals)
}

func TestController_ReturnPositionAsymmetry(t *testing.T) {
	returnPos := &machine.Position{X: 50, Y: 60, Z: 10}

	t.Run("attach restores xy only", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		w.attachAfter = 1

		c := newTestController(t, cfg, w)
		require.NoError(t, c.Attach(returnPos))

		moves := w.Moves()
		last := moves[len(moves)-1].Move
		require.NotNil(t, last.X)
		assert.Equal(t, 50.0, *last.X)
		assert.Equal(t, 60.0, *last.Y)
		assert.Nil(t, last.Z, "z must not be restored after attach")
	})

	t.Run("dock restores xy then z", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		w.attached, w.docked = true, false
		w.dockAfter = 1

		c := newTestController(t, cfg, w)
		require.NoError(t, c.Dock(returnPos))

		moves := w.Moves()
		require.GreaterOrEqual(t, len(moves), 2)
		xy := moves[len(moves)-2].Move
		z := moves[len(moves)-1].Move
		assert.Equal(t, 50.0, *xy.X)
		assert.Equal(t, 60.0, *xy.Y)
		assert.Nil(t, xy.Z)
		require.NotNil(t, z.Z)
		assert.Equal(t, 10.0, *z.Z)
		assert.Nil(t, z.X)
	})
}

func TestController_TraversalSpeeds(t *testing.T) {
	w, cfg := newTestWorld(t)
	cfg.TravelSpeed = 100
	cfg.AttachSpeed = 25
	w.attachAfter = 1

	c := newTestController(t, cfg, w)
	require.NoError(t, c.Attach(nil))

	moves := w.Moves()
	require.Len(t, moves, 3)
	assert.Equal(t, 100.0, moves[0].Speed, "first waypoint at travel speed")
	assert.Equal(t, 25.0, moves[1].Speed)
	assert.Equal(t, 25.0, moves[2].Speed)
}

func TestController_ZHomingGate(t *testing.T) {
	t.Run("3d route requires homed z", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		route, err := coord.ParseRoute([][]float64{{228, 15, 5}, {215, 5}})
		require.NoError(t, err)
		cfg.AttachRoute = route
		cfg.ZHop = 5
		w.SetHomed("xy")

		c := newTestController(t, cfg, w)
		assert.ErrorIs(t, c.Attach(nil), ErrZNotHomed)
		assert.Zero(t, w.attachTraversals)
	})

	t.Run("2d route never requires z", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		w.SetHomed("")
		w.attachAfter = 1

		c := newTestController(t, cfg, w)
		assert.NoError(t, c.Attach(nil))
	})
}

func TestController_AlignZHop(t *testing.T) {
	t.Run("lifts when homed below hop height", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		cfg.ZHop = 15
		cfg.LiftSpeed = 20
		w.MoveTo(machine.Position{Z: 2})

		c := newTestController(t, cfg, w)
		require.NoError(t, c.alignZ())

		moves := w.Moves()
		require.Len(t, moves, 1)
		require.NotNil(t, moves[0].Move.Z)
		assert.Equal(t, 15.0, *moves[0].Move.Z)
		assert.Equal(t, 20.0, moves[0].Speed)
	})

	t.Run("no lift at or above hop height", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		cfg.ZHop = 15
		w.MoveTo(machine.Position{Z: 20})

		c := newTestController(t, cfg, w)
		require.NoError(t, c.alignZ())
		assert.Empty(t, w.Moves())
	})
}

func TestController_ForcedZHopIdempotent(t *testing.T) {
	w, cfg := newTestWorld(t)
	cfg.ZHop = 10
	w.SetHomed("xy")

	c := newTestController(t, cfg, w)
	require.NoError(t, c.alignZ())

	moves := w.Moves()
	require.Len(t, moves, 1)
	require.NotNil(t, moves[0].Move.Z)
	assert.Equal(t, 10.0, *moves[0].Move.Z)

	// z is still flagged unhomed after the hop
	assert.False(t, w.Status(time.Now()).Homed('z'))

	// no true z change since the last forced hop: no second hop
	require.NoError(t, c.alignZ())
	assert.Len(t, w.Moves(), 1)
}

func TestController_AutoAttach(t *testing.T) {
	t.Run("no-op when attached", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		w.attached, w.docked = true, false
		c := newTestController(t, cfg, w)
		require.NoError(t, c.AutoAttach(nil))
		assert.Empty(t, w.Moves())
	})

	t.Run("error when disabled", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		cfg.AutoAttachDock = false
		c := newTestController(t, cfg, w)
		assert.ErrorIs(t, c.AutoAttach(nil), ErrAutoAttachDisabled)
	})

	t.Run("delegates to attach", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		w.attachAfter = 1
		c := newTestController(t, cfg, w)
		require.NoError(t, c.AutoAttach(nil))
		assert.Equal(t, 1, w.attachTraversals)
	})
}

func TestController_AutoDock(t *testing.T) {
	t.Run("silently skips when disabled", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		cfg.AutoAttachDock = false
		w.attached, w.docked = true, false
		c := newTestController(t, cfg, w)
		require.NoError(t, c.AutoDock(nil))
		assert.Empty(t, w.Moves())
	})

	t.Run("no-op when docked", func(t *testing.T) {
		w, cfg := newTestWorld(t)
		c := newTestController(t, cfg, w)
		require.NoError(t, c.AutoDock(nil))
		assert.Empty(t, w.Moves())
	})
}

func TestController_QueryStatus(t *testing.T) {
	w, cfg := newTestWorld(t)
	c := newTestController(t, cfg, w)

	assert.Equal(t, sense.StatusUnknown, c.LastStatus())
	assert.Equal(t, sense.StatusDocked, c.QueryStatus())
	assert.Equal(t, sense.StatusDocked, c.LastStatus())
}

func TestNewController_VirtualZEndstop(t *testing.T) {
	w, cfg := newTestWorld(t)
	route, err := coord.ParseRoute([][]float64{{228, 15, 5}, {215, 5}})
	require.NoError(t, err)
	cfg.AttachRoute = route
	cfg.ZHop = 5

	v, err := sense.NewVerifier(sense.VerifierConfig{
		ProbeEndstop: machine.QuerierFunc(func(time.Time) bool { return false }),
		ProbeSense:   machine.QuerierFunc(func(time.Time) bool { return w.attached }),
	}, zerolog.Nop())
	require.NoError(t, err)

	_, err = NewController(ControllerOptions{
		Config:          cfg,
		Toolhead:        w,
		Verifier:        v,
		ZEndstopIsProbe: true,
		Logger:          zerolog.Nop(),
	})
	assert.ErrorIs(t, err, ErrVirtualZEndstop)
}
