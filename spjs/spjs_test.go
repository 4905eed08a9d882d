package spjs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseRaw(t *testing.T, raw string) interface{} {
	t.Helper()
	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	val, err := parseMessage([]byte(raw), msg)
	require.NoError(t, err)
	return val
}

func TestParseMessage(t *testing.T) {
	val := parseRaw(t, `{"P":"/dev/ttyUSB0","D":"ok\n"}`)
	df, ok := val.(*DataFrame)
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyUSB0", df.Port)
	assert.Equal(t, "ok\n", df.Data)

	val = parseRaw(t, `{"SerialPorts":[{"Name":"/dev/ttyUSB0","IsOpen":true}]}`)
	list, ok := val.(*SerialPortList)
	require.True(t, ok)
	require.Len(t, list.SerialPorts, 1)
	assert.True(t, list.SerialPorts[0].IsOpen)

	val = parseRaw(t, `{"Error":"port not found"}`)
	errMsg, ok := val.(*ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, "port not found", errMsg.Error)
}

func TestPortRW_Deliver(t *testing.T) {
	p := &PortRW{notify: make(chan struct{}, 1)}
	p.deliver("<Idle>\n")

	buf := make([]byte, 64)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "<Idle>\n", string(buf[:n]))
}
