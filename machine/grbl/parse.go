package grbl

import (
	"errors"
	"strconv"
	"strings"

	"github.com/probelab/dockprobe/coord"
)

// Status is a parsed grbl status report.
type Status struct {
	State string
	MPos  coord.Point
	WCO   coord.Point
	// Pins holds the triggered input letters from the Pn: field, e.g.
	// "PZ" when the probe and z-limit inputs are active.
	Pins string
}

// ProbeReport is a parsed [PRB:...] push message.
type ProbeReport struct {
	coord.Point
	Valid bool
}

func parseCoords(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return p, errors.New("invalid number of elements")
	}
	p.X, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return p, err
	}
	p.Y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return p, err
	}
	p.Z, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return p, err
	}
	return p, nil
}

func parseProbe(data string) (*ProbeReport, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "[")
	data = strings.TrimSuffix(data, "]")
	parts := strings.Split(data, ":")
	if parts[0] != "PRB" || len(parts) < 3 {
		return nil, errors.New("unknown PUSH message: " + data)
	}

	var res ProbeReport
	res.Valid = parts[2] == "1"
	var err error
	res.Point, err = parseCoords(parts[1])
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func parseStatus(stat Status, data string) (*Status, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")
	stat.State = parts[0]

	// Pn is only reported while an input is active.
	stat.Pins = ""

	var err error
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = parseCoords(sParts[1])
		case "WCO":
			stat.WCO, err = parseCoords(sParts[1])
		case "Pn":
			stat.Pins = sParts[1]
		}
		if err != nil {
			return nil, err
		}
	}
	return &stat, nil
}
