package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoute(t *testing.T) {
	r, err := ParseRoute([][]float64{{228, 15}, {228, 5, 2.5}, {215, 5}})
	require.NoError(t, err)
	require.Len(t, r, 3)

	assert.Equal(t, Waypoint{X: 228, Y: 15}, r[0])
	assert.Equal(t, Waypoint{X: 228, Y: 5, Z: 2.5, HasZ: true}, r[1])
	assert.True(t, r.RequiresZ())

	_, err = ParseRoute([][]float64{{228}})
	assert.Error(t, err)

	_, err = ParseRoute([][]float64{{1, 2, 3, 4}})
	assert.Error(t, err)
}

func TestRoute_RequiresZ(t *testing.T) {
	r, err := ParseRoute([][]float64{{10, 10}, {20, 20}})
	require.NoError(t, err)
	assert.False(t, r.RequiresZ())
}

func TestWaypoint_Move(t *testing.T) {
	m := Waypoint{X: 1, Y: 2}.Move()
	assert.Equal(t, 1.0, *m.X)
	assert.Equal(t, 2.0, *m.Y)
	assert.Nil(t, m.Z)

	m = Waypoint{X: 1, Y: 2, Z: 3, HasZ: true}.Move()
	require.NotNil(t, m.Z)
	assert.Equal(t, 3.0, *m.Z)
}
