package sense

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/dockprobe/machine"
)

func boolPin(v *bool) machine.EndstopQuerier {
	return machine.QuerierFunc(func(now time.Time) bool { return *v })
}

func TestNewVerifier_FailFast(t *testing.T) {
	var endstop bool
	_, err := NewVerifier(VerifierConfig{
		ProbeEndstop: boolPin(&endstop),
	}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrNoVerifyMethod)
}

func TestNewVerifier_Strategy(t *testing.T) {
	var pin bool
	open := true
	closed := false

	cases := []struct {
		name string
		cfg  VerifierConfig
		want Strategy
	}{
		{"dual", VerifierConfig{ProbeEndstop: boolPin(&pin), ProbeSense: boolPin(&pin), DockSense: boolPin(&pin)}, StrategyDualSensor},
		{"open-attach", VerifierConfig{ProbeEndstop: boolPin(&pin), CheckOpenAttach: &open}, StrategySingleSensorOpen},
		{"closed-attach", VerifierConfig{ProbeEndstop: boolPin(&pin), CheckOpenAttach: &closed}, StrategySingleSensorClosed},
		{"probe-sense-only", VerifierConfig{ProbeEndstop: boolPin(&pin), ProbeSense: boolPin(&pin)}, StrategySingleSensorClosed},
		{"dock-only-fallback", VerifierConfig{ProbeEndstop: boolPin(&pin), DockSense: boolPin(&pin)}, StrategyFallback},
		// check_open_attach takes precedence over a configured sense pin
		{"open-attach-override", VerifierConfig{ProbeEndstop: boolPin(&pin), ProbeSense: boolPin(&pin), CheckOpenAttach: &open}, StrategySingleSensorOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := NewVerifier(tc.cfg, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tc.want, v.Strategy())
		})
	}
}

func TestVerifier_DualSensorTruthTable(t *testing.T) {
	var attach, dock, endstop bool

	v, err := NewVerifier(VerifierConfig{
		ProbeEndstop: boolPin(&endstop),
		ProbeSense:   boolPin(&attach),
		DockSense:    boolPin(&dock),
	}, zerolog.Nop())
	require.NoError(t, err)

	cases := []struct {
		a, d bool
		want Status
	}{
		{true, false, StatusAttached},
		{false, true, StatusDocked},
		{true, true, StatusUnknown},
		{false, false, StatusUnknown},
	}
	now := time.Now()
	for _, tc := range cases {
		attach, dock = tc.a, tc.d
		v.Reset()
		assert.Equalf(t, tc.want, v.Status(now), "a=%v d=%v", tc.a, tc.d)
		now = now.Add(time.Second)
	}
}

func TestVerifier_SingleSensorNeverUnknown(t *testing.T) {
	var attach, endstop bool
	v, err := NewVerifier(VerifierConfig{
		ProbeEndstop: boolPin(&endstop),
		ProbeSense:   boolPin(&attach),
	}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Now()
	attach = true
	assert.Equal(t, StatusAttached, v.Status(now))

	attach = false
	v.Reset()
	assert.Equal(t, StatusDocked, v.Status(now.Add(time.Second)))
}

func TestVerifier_OpenAttachInversion(t *testing.T) {
	endstop := false // open circuit while attached
	open := true
	v, err := NewVerifier(VerifierConfig{
		ProbeEndstop:    boolPin(&endstop),
		CheckOpenAttach: &open,
	}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Now()
	assert.Equal(t, StatusAttached, v.Status(now))

	endstop = true
	v.Reset()
	assert.Equal(t, StatusDocked, v.Status(now.Add(time.Second)))
}

func TestVerifier_StatusCaching(t *testing.T) {
	attach, dock, endstop := true, false, false
	v, err := NewVerifier(VerifierConfig{
		ProbeEndstop: boolPin(&endstop),
		ProbeSense:   boolPin(&attach),
		DockSense:    boolPin(&dock),
	}, zerolog.Nop())
	require.NoError(t, err)

	start := time.Now()
	assert.Equal(t, StatusAttached, v.Status(start))

	// Within the TTL the cached resolution stands.
	attach, dock = false, true
	assert.Equal(t, StatusAttached, v.Status(start.Add(50*time.Millisecond)))

	// Stale cache re-derives.
	assert.Equal(t, StatusDocked, v.Status(start.Add(250*time.Millisecond)))

	// Reset drops straight back to re-derivation.
	v.Reset()
	attach, dock = true, true
	assert.Equal(t, StatusUnknown, v.Status(start.Add(time.Second)))
}
