package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/probelab/dockprobe/coord"
	"github.com/probelab/dockprobe/dock"
	"github.com/probelab/dockprobe/machine"
	"github.com/probelab/dockprobe/meshlevel"
	"github.com/probelab/dockprobe/sense"
)

type api struct {
	http.Handler

	svc    *probeService
	th     machine.Toolhead
	prober meshlevel.PointProber
	log    zerolog.Logger

	sse *sse.Server
}

func newAPI(svc *probeService, th machine.Toolhead, prober meshlevel.PointProber, logger zerolog.Logger) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		svc:     svc,
		th:      th,
		prober:  prober,
		log:     logger,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
	}

	r.HandleFunc("/api/probe/query", a.query).Methods("GET")
	r.HandleFunc("/api/probe/attach", a.attach).Methods("POST")
	r.HandleFunc("/api/probe/dock", a.dock).Methods("POST")
	r.HandleFunc("/api/probe/set", a.set).Methods("POST")
	r.HandleFunc("/api/mesh", a.mesh).Methods("POST")

	r.PathPrefix("/events/").Handler(a.sse)

	go a.statusLoop()

	return a
}

// statusLoop publishes attachment status changes on the event stream.
func (a *api) statusLoop() {
	last := sense.StatusUnknown
	for {
		cur := a.svc.queryStatus()
		if cur != last {
			last = cur
			a.sse.SendMessage("/events/probe", sse.SimpleMessage(cur.String()))
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func (a *api) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error().Err(err).Msg("encode response")
	}
}

func (a *api) query(w http.ResponseWriter, req *http.Request) {
	a.writeJSON(w, map[string]string{
		"status":      a.svc.queryStatus().String(),
		"last_status": a.svc.lastStatus().String(),
	})
}

func (a *api) returnPos() *machine.Position {
	pos := a.th.Position()
	return &pos
}

func (a *api) attach(w http.ResponseWriter, req *http.Request) {
	if err := a.svc.attach(a.returnPos()); err != nil {
		a.log.Error().Err(err).Msg("attach")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, map[string]string{"status": a.svc.queryStatus().String()})
}

func (a *api) dock(w http.ResponseWriter, req *http.Request) {
	if err := a.svc.dock(a.returnPos()); err != nil {
		a.log.Error().Err(err).Msg("dock")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, map[string]string{"status": a.svc.queryStatus().String()})
}

func (a *api) set(w http.ResponseWriter, req *http.Request) {
	v := req.FormValue("auto_attach_dock")
	if v == "" {
		http.Error(w, "auto_attach_dock is required", http.StatusBadRequest)
		return
	}
	a.svc.setAutoAttachDock(v == "1")
	a.writeJSON(w, map[string]bool{"auto_attach_dock": a.svc.autoAttachDock()})
}

func (a *api) mesh(w http.ResponseWriter, req *http.Request) {
	var err error
	parse := func(param string) (val float64) {
		if err != nil {
			return 0
		}
		val, err = strconv.ParseFloat(req.FormValue(param), 64)
		return val
	}
	var opt meshlevel.GridOptions
	opt.OriginX = parse("originX")
	opt.OriginY = parse("originY")
	opt.DistanceX = parse("distX")
	opt.DistanceY = parse("distY")
	opt.CountX = int(parse("countX"))
	opt.CountY = int(parse("countY"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var points []coord.Point
	err = a.svc.run(func(ctrl *dock.Controller) error {
		session := dock.NewSession(ctrl, a.log)
		g := meshlevel.NewGridProber(session, a.th, ctrl.Config(), a.prober, a.log)
		var probeErr error
		points, probeErr = g.Probe(opt)
		return probeErr
	})
	if err != nil {
		a.log.Error().Err(err).Msg("grid probe")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, points)
}
