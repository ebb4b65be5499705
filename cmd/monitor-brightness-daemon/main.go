// Package main provides the entry point for the monitor brightness daemon.
package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/JRF63/monitor-brightness-controller/internal/config"
	"github.com/JRF63/monitor-brightness-controller/internal/coordinator"
	"github.com/JRF63/monitor-brightness-controller/internal/dbus"
	"github.com/JRF63/monitor-brightness-controller/internal/event"
	"github.com/JRF63/monitor-brightness-controller/internal/hotplug"
	"github.com/JRF63/monitor-brightness-controller/internal/monitor"
	"github.com/JRF63/monitor-brightness-controller/internal/power"
)

var (
	verbose    bool
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "monitor-brightness-daemon",
		Short: "D-Bus daemon for controlling monitor brightness",
		Long: `monitor-brightness-daemon is a D-Bus service that controls the brightness
of connected monitors, over DDC/CI for external displays and over USB HID
for Apple Studio Displays.

Brightness requests are coalesced and written by a single worker, so rapid
slider movement settles on the newest value instead of queueing every step.
The daemon re-applies the last requested brightness after the system resumes
from sleep and after display hot-plug, since monitors tend to forget the
DDC-set level across power cycles.`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
}

func run() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("Starting monitor-brightness-daemon")

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Enumerate displays once at startup; hot-plug triggers a re-apply of
	// the known displays rather than a re-enumeration.
	manager := monitor.NewManager()
	if err := manager.Enumerate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to enumerate displays")
	}
	monitors := manager.Monitors()
	log.Info().Int("count", len(monitors)).Msg("Found displays")

	// Initialize the brightness worker
	mailbox := event.NewMailbox(cfg.MailboxCapacity)
	writer := coordinator.NewWriter(cfg.Retry.Policy())
	coord := coordinator.New(mailbox, writer, coordinatorTargets(monitors))
	levels := coord.Levels()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		coord.Run()
	}()

	// Initialize D-Bus server
	server := dbus.NewServer(mailbox, displayStates(monitors, levels),
		rate.Limit(cfg.RateLimit.PerSecond), cfg.RateLimit.Burst)
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start D-Bus server")
	}

	// Re-apply brightness a short while after resume or hot-plug
	scheduler := power.NewScheduler(cfg.ResetDelay(), func() {
		mailbox.Send(event.Reset())
	})

	powerMonitor := power.NewMonitor(scheduler.Observe)
	if err := powerMonitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start sleep monitor (resume re-apply disabled)")
	}

	hotplugMonitor := hotplug.NewMonitor(func(ev hotplug.Event) {
		log.Debug().Str("action", ev.Action).Str("devpath", ev.DevPath).Msg("Display hot-plug detected")
		scheduler.Trigger()
	})
	if err := hotplugMonitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start hot-plug monitor (hot-plug re-apply disabled)")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("Daemon running, press Ctrl+C to stop")
	<-sigChan

	// Cleanup
	log.Info().Msg("Shutting down...")
	scheduler.Stop()
	if err := powerMonitor.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop sleep monitor")
	}
	if err := hotplugMonitor.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop hot-plug monitor")
	}
	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop D-Bus server")
	}

	mailbox.Send(event.Quit())
	mailbox.Close()
	wg.Wait()

	if err := manager.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close displays")
	}

	log.Info().Msg("Daemon stopped")
}

// loadConfig loads the configuration from path, falling back to the default
// location when no path was given.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
		path = defaultPath
	}
	return config.Load(path)
}

// coordinatorTargets adapts the enumerated monitors to the worker's target
// interface, keyed by enumeration index.
func coordinatorTargets(monitors []*monitor.Monitor) []coordinator.Target {
	targets := make([]coordinator.Target, len(monitors))
	for i, m := range monitors {
		targets[i] = m
	}
	return targets
}

// displayStates builds the D-Bus server's initial view of the displays from
// the monitors and the levels the worker seeded at startup.
func displayStates(monitors []*monitor.Monitor, levels []uint32) []dbus.DisplayState {
	states := make([]dbus.DisplayState, len(monitors))
	for i, m := range monitors {
		min, max := m.Bounds()
		states[i] = dbus.DisplayState{
			Name:  m.Name(),
			Level: levels[i],
			Min:   min,
			Max:   max,
		}
	}
	return states
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
