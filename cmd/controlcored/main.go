// Command controlcored is a demo host process for the control-routing core:
// it wires one orchestrate.Container holding two unit.Unit instances that
// share a single REAPER OSC sink, seeds each with a fixed set of demo
// mappings, and runs the cooperative sweep loop on a fixed
// interval the same way a plug-in host's idle callback would.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jdginn/controlcore/devices"
	"github.com/jdginn/controlcore/devices/hoststate"
	"github.com/jdginn/controlcore/devices/reaper"
	"github.com/jdginn/controlcore/mapping"
	"github.com/jdginn/controlcore/mode"
	"github.com/jdginn/controlcore/orchestrate"
	"github.com/jdginn/controlcore/source"
	"github.com/jdginn/controlcore/target"
	"github.com/jdginn/controlcore/unit"
	"github.com/jdginn/controlcore/unitmodel"
	"github.com/jdginn/controlcore/value"
)

// logLevel is a pflag.Value implementation so --log-level gets the same
// validate-on-parse behavior as cobra/pflag's own typed flags (e.g.
// pflag.Duration), rather than being read as a bare string and parsed later.
type logLevel struct{ level charmlog.Level }

func (l *logLevel) String() string { return l.level.String() }
func (l *logLevel) Type() string   { return "level" }
func (l *logLevel) Set(s string) error {
	parsed, err := charmlog.ParseLevel(s)
	if err != nil {
		return err
	}
	l.level = parsed
	return nil
}

var _ pflag.Value = (*logLevel)(nil)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	level := &logLevel{level: charmlog.InfoLevel}

	root := &cobra.Command{
		Use:   "controlcored",
		Short: "Demo host for the control-routing core",
	}
	root.PersistentFlags().VarP(level, "log-level", "l", "log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(level))
	root.AddCommand(newValidateConfigCmd())
	return root
}

func newValidateConfigCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Load a unit settings YAML file and report whether it parses",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := unitmodel.LoadUnitSettings(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			fmt.Printf("%+v\n", settings)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "settings", "s", "unit.yaml", "path to a unit settings YAML file")
	return cmd
}

func newRunCmd(level *logLevel) *cobra.Command {
	var (
		settingsPath string
		oscSendAddr  string
		oscSendPort  int
		oscListenIP  string
		oscListenPort int
		hostStateURL string
		interval     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run two demo units sharing a REAPER OSC sink and sweep on an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
				ReportTimestamp: true,
				Prefix:          "controlcored",
			})
			logger.SetLevel(level.level)

			settings := unitmodel.DefaultUnitSettings()
			if settingsPath != "" {
				if loaded, err := unitmodel.LoadUnitSettings(settingsPath); err == nil {
					settings = loaded
				} else {
					logger.Warn("could not load settings file, using defaults", "path", settingsPath, "err", err)
				}
			}

			oscDevice := devices.NewOscDevice(oscSendAddr, oscSendPort, oscListenIP, oscListenPort, reaper.NewDispatcher())
			sink := reaper.NewSink(oscDevice)

			bus := orchestrate.NewBus()
			bus.OnIoUpdated(func(e orchestrate.IoUpdated) {
				logger.Debug("io updated", "unit", e.Unit, "feedback_out_used", e.FeedbackOutUsed, "usage_might_have_changed", e.UsageMightHaveChanged)
			})
			bus.OnSourceReleased(func(e orchestrate.SourceReleased) {
				logger.Info("source released", "unit", e.Unit, "address", string(e.FeedbackOutput))
			})
			container := orchestrate.NewContainer(bus)

			deskA := unit.New("deskA", sink, settings)
			deskB := unit.New("deskB", sink, settings)
			seedDemoMappings(deskA)
			seedDemoMappings(deskB)
			container.AddUnit(deskA.Name, deskA.Proc)
			container.AddUnit(deskB.Name, deskB.Proc)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if hostStateURL != "" {
				poller := hoststate.NewPoller(hostStateURL)
				deskA.Proc.HostState = poller.HostState
				deskB.Proc.HostState = poller.HostState
				go poller.Run(ctx, 500*time.Millisecond)
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			logger.Info("controlcored running", "interval", interval, "units", []string{deskA.Name, deskB.Name})
			for {
				select {
				case <-ctx.Done():
					logger.Info("shutting down")
					return nil
				case <-ticker.C:
					// No live device-input goroutine is wired into this demo, so
					// every unit sweeps with an empty event batch: only feedback
					// polling and activation re-evaluation run, exactly as a host
					// tick does between device events.
					results := container.SweepAll(nil)
					for name, res := range results {
						for _, fb := range res.Feedback {
							logger.Debug("feedback", "unit", name, "address", string(fb.Address), "value", float64(fb.Value))
						}
						for _, addr := range res.UnusedSourceFlushes {
							logger.Info("unused source flush", "unit", name, "address", string(addr))
						}
					}
				}
			}
		},
	}

	cmd.Flags().StringVarP(&settingsPath, "settings", "s", "", "path to a unit settings YAML file (defaults applied if omitted)")
	cmd.Flags().StringVar(&oscSendAddr, "osc-send-addr", "127.0.0.1", "REAPER OSC listen address to send to")
	cmd.Flags().IntVar(&oscSendPort, "osc-send-port", 8000, "REAPER OSC listen port to send to")
	cmd.Flags().StringVar(&oscListenIP, "osc-listen-addr", "127.0.0.1", "local address to receive REAPER's OSC feedback on")
	cmd.Flags().IntVar(&oscListenPort, "osc-listen-port", 9000, "local port to receive REAPER's OSC feedback on")
	cmd.Flags().DurationVar(&interval, "interval", 50*time.Millisecond, "sweep interval, mirroring the host's main-thread tick")
	cmd.Flags().StringVar(&hostStateURL, "host-state-url", "", "REAPER companion HTTP endpoint for host-state activation flags (disabled if empty)")
	return cmd
}

// seedDemoMappings installs two example scenarios: a CC mapped straight to
// an FX parameter, and a note-on routed through a virtual element to a
// REAPER transport action.
func seedDemoMappings(u *unit.Unit) {
	ccToFX, err := mapping.New(1, mapping.Main, source.MIDICC("demo-controller", 0, 7),
		target.FXParameterTarget(0, 0, 3),
		fxModeConfig(),
		mapping.Always,
		mapping.Options{ControlEnabled: true, FeedbackEnabled: true},
	)
	if err == nil {
		u.Proc.UpsertMapping(ccToFX)
	}

	noteToVirtual, err := mapping.New(2, mapping.Controller, source.MIDINote("demo-controller", 0, 60),
		target.VirtualTarget("btn1"),
		toggleModeConfig(),
		mapping.Always,
		mapping.Options{ControlEnabled: true, FeedbackEnabled: true},
	)
	if err == nil {
		u.Proc.UpsertMapping(noteToVirtual)
	}

	virtualToPlay, err := mapping.New(3, mapping.Main, source.Virtual("btn1"),
		target.TransportTarget(target.Play),
		toggleModeConfig(),
		mapping.Always,
		mapping.Options{ControlEnabled: true, FeedbackEnabled: true},
	)
	if err == nil {
		u.Proc.UpsertMapping(virtualToPlay)
	}

	u.Proc.ControllerTable.RebuildIndexes()
	u.Proc.MainTable.RebuildIndexes()
}

func fxModeConfig() mode.Config {
	return mode.Config{Kind: mode.Absolute, SourceInterval: value.FullInterval, TargetInterval: value.FullInterval}
}

func toggleModeConfig() mode.Config {
	return mode.Config{Kind: mode.Toggle, SourceInterval: value.FullInterval, TargetInterval: value.FullInterval}
}
