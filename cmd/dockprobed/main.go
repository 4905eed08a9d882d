package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"github.com/tarm/serial"

	"github.com/probelab/dockprobe/dock"
	"github.com/probelab/dockprobe/machine"
	"github.com/probelab/dockprobe/machine/grbl"
	"github.com/probelab/dockprobe/meshlevel"
	"github.com/probelab/dockprobe/sense"
	"github.com/probelab/dockprobe/spjs"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	var cfgPath string
	root := &cobra.Command{
		Use:          "dockprobed",
		Short:        "Dockable probe controller for grbl machines",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfgPath, logger)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "dockprobe.toml", "Path to the TOML configuration file.")
	root.Flags().String("addr", "", "Address to bind the HTTP server to.")
	root.Flags().String("port", "", "Serial port path (or port name if using SPJS).")
	root.Flags().String("spjs", "", "Websocket URL of an SPJS server to use instead of a local port.")
	root.Flags().Int("baud", 0, "Serial baud rate.")
	root.Flags().Bool("sim", false, "Run against an in-memory toolhead.")

	if err := root.Execute(); err != nil {
		logger.Fatal().Err(err).Msg("dockprobed")
	}
}

func run(cmd *cobra.Command, cfgPath string, logger zerolog.Logger) error {
	fc, err := loadFileConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cmd, &fc)
	applyDefaults(&fc)

	cfg, err := fc.dockConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var (
		th     machine.Toolhead
		vcfg   sense.VerifierConfig
		prober meshlevel.PointProber
	)
	if fc.Sim {
		sim := machine.NewSim()
		sensors := newSimSensors(sim, cfg)
		th = sim
		vcfg.ProbeSense = sensors.attachQuerier()
		vcfg.DockSense = sensors.dockQuerier()
		prober = meshlevel.ProberFunc(func() (machine.Position, error) {
			pos := sim.Position()
			pos.Z = 0
			return pos, nil
		})
		logger.Info().Msg("running in sim mode")
	} else {
		var rw io.ReadWriter
		if fc.SPJSURL != "" {
			sp := spjs.New(fc.SPJSURL, logger.With().Str("component", "spjs").Logger())
			rw = sp.OpenPort(fc.SerialPort, fc.Baud)
		} else {
			s, err := serial.OpenPort(&serial.Config{Name: fc.SerialPort, Baud: fc.Baud})
			if err != nil {
				return fmt.Errorf("open serial port %s: %w", fc.SerialPort, err)
			}
			rw = s
		}
		port := grbl.NewPort(rw, logger.With().Str("component", "grbl").Logger())
		th = port

		vcfg.ProbeEndstop = port.PinQuerier('P')
		if fc.ProbeSensePin != "" {
			letter, err := fc.pinLetter(fc.ProbeSensePin)
			if err != nil {
				return fmt.Errorf("probe_sense_pin: %w", err)
			}
			vcfg.ProbeSense = port.PinQuerier(letter)
		}
		if fc.DockSensePin != "" {
			letter, err := fc.pinLetter(fc.DockSensePin)
			if err != nil {
				return fmt.Errorf("dock_sense_pin: %w", err)
			}
			vcfg.DockSense = port.PinQuerier(letter)
		}
		prober = meshlevel.ProberFunc(func() (machine.Position, error) {
			return port.ProbeZ(fc.ProbeDepth, fc.ProbeSpeed)
		})
	}
	vcfg.CheckOpenAttach = fc.CheckOpenAttach

	verifier, err := sense.NewVerifier(vcfg, logger.With().Str("component", "verify").Logger())
	if err != nil {
		return err
	}
	ctrl, err := dock.NewController(dock.ControllerOptions{
		Config:          cfg,
		Toolhead:        th,
		Verifier:        verifier,
		ZEndstopIsProbe: fc.ZEndstopIsProbe,
		Logger:          logger.With().Str("component", "dock").Logger(),
	})
	if err != nil {
		return err
	}
	svc := newProbeService(ctrl)
	svc.handleReady()
	logger.Info().Stringer("status", svc.queryStatus()).Msg("probe state at startup")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go watchPolicy(ctx, cfgPath, svc, logger.With().Str("component", "watch").Logger())

	a := newAPI(svc, th, prober, logger.With().Str("component", "api").Logger())
	srv := &http.Server{Addr: fc.Addr, Handler: withLogging(a, logger)}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", fc.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// applyFlags lets command line flags override the file values.
func applyFlags(cmd *cobra.Command, fc *fileConfig) {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if changed["addr"] {
		fc.Addr, _ = cmd.Flags().GetString("addr")
	}
	if changed["port"] {
		fc.SerialPort, _ = cmd.Flags().GetString("port")
	}
	if changed["spjs"] {
		fc.SPJSURL, _ = cmd.Flags().GetString("spjs")
	}
	if changed["baud"] {
		fc.Baud, _ = cmd.Flags().GetInt("baud")
	}
	if changed["sim"] {
		fc.Sim, _ = cmd.Flags().GetBool("sim")
	}
}

func applyDefaults(fc *fileConfig) {
	if fc.Addr == "" {
		fc.Addr = ":9091"
	}
	if fc.Baud == 0 {
		fc.Baud = 115200
	}
	if fc.ProbeDepth == 0 {
		fc.ProbeDepth = 10
	}
	if fc.ProbeSpeed == 0 {
		fc.ProbeSpeed = 5
	}
}

func withLogging(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		logger.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("remote", req.RemoteAddr).
			Msg("request")
		next.ServeHTTP(w, req)
	})
}
