// Command test cross-checks the g-code emitted for a docking route against
// an independent interpreter. The route below mirrors a typical side-dock
// layout; the final dumped position should land on the last waypoint.
package main

import (
	"fmt"
	"strings"

	"github.com/joushou/gocnc/gcode"
	"github.com/joushou/gocnc/vm"

	"github.com/probelab/dockprobe/coord"
	"github.com/probelab/dockprobe/machine/grbl"
)

func main() {
	route, err := coord.ParseRoute([][]float64{
		{228, 15},
		{228, 5},
		{215, 5},
	})
	if err != nil {
		panic(err)
	}

	var lines []string
	for i, w := range route {
		speed := 25.0
		if i == 0 {
			speed = 100
		}
		// The interpreter has no machine-coordinate mode, so drop the
		// G53 prefix; with no work offset applied they are the same.
		line := strings.TrimPrefix(grbl.FormatMove(w.Move(), speed), "G53 ")
		fmt.Println(line)
		lines = append(lines, line)
	}

	doc, err := gcode.Parse(strings.Join(lines, "\n"))
	if err != nil {
		panic(err)
	}

	var m vm.Machine
	m.Init()
	m.Process(doc)
	m.Dump()
}
