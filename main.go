package main

import (
	"context"
	"fmt"
	"os"

	"ble-locate.klederson.com/internal/app"
	"ble-locate.klederson.com/internal/config"
	"ble-locate.klederson.com/internal/telemetry"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	flagDemo         bool
	flagAdapter      string
	flagConfig       string
	flagLogFile      string
	flagLogLevel     string
	flagFloorplanOut string
	flagMetricsAddr  string
	flagMQTTBroker   string
	flagMQTTTopic    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ble-locate",
		Short: "BLE Locate - place Bluetooth devices on a floor plan from several scanners",
		Long: `BLE Locate collects Bluetooth Low Energy advertisements from one or more
scanners, estimates the distance from each scanner to each device and, with
three or more scanners at known floor-plan coordinates, trilaterates device
positions.

Requires sudo or CAP_NET_ADMIN capability for real Bluetooth scanning.
Use --demo for a simulated set of scanners and devices.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().BoolVar(&flagDemo, "demo", false, "Run with simulated scanners and devices (no Bluetooth required)")
	rootCmd.Flags().StringVar(&flagAdapter, "adapter", "hci0", "Bluetooth adapter to use")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "JSON options file (scanner_coords, device_coords, ...)")
	rootCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Write logs to this file (logs are discarded otherwise)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.Flags().StringVar(&flagFloorplanOut, "floorplan-out", "", "Periodically write the floor plan PNG to this path")
	rootCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics and device state on this address, e.g. :9105")
	rootCmd.Flags().StringVar(&flagMQTTBroker, "mqtt-broker", "", "Publish device state to this MQTT broker, e.g. tcp://localhost:1883")
	rootCmd.Flags().StringVar(&flagMQTTTopic, "mqtt-topic", telemetry.DefaultTopicPrefix, "MQTT topic prefix")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	opts := config.DefaultOptions()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		opts = loaded
	}

	logger, closeLog, err := config.NewLogger(flagLogLevel, flagLogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	log := logger.WithField("component", "main")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	metrics := telemetry.NewMetrics()

	var publisher *telemetry.Publisher
	if flagMQTTBroker != "" {
		publisher = telemetry.NewPublisher(telemetry.PublisherConfig{
			Broker:      flagMQTTBroker,
			TopicPrefix: flagMQTTTopic,
		}, log)
		if err := publisher.Connect(); err != nil {
			return err
		}
		defer publisher.Disconnect()
	}

	model, err := app.New(app.Config{
		Demo:         flagDemo,
		Adapter:      flagAdapter,
		Options:      opts,
		FloorplanOut: flagFloorplanOut,
		Metrics:      metrics,
		Publisher:    publisher,
		Log:          logger,
	})
	if err != nil {
		return err
	}

	if flagMetricsAddr != "" {
		router := telemetry.NewRouter(metrics, model.Registry())
		go func() {
			if err := telemetry.Serve(ctx, flagMetricsAddr, router, log); err != nil {
				log.WithError(err).Error("HTTP server stopped")
			}
		}()
	}

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithFPS(30),
	)

	// Start scanners with reference to the tea program
	if err := model.StartScanners(p); err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
		fmt.Fprintln(os.Stderr, "Bluetooth scanning requires elevated permissions.")
		fmt.Fprintln(os.Stderr, "Try one of:")
		fmt.Fprintln(os.Stderr, "  sudo ./ble-locate")
		fmt.Fprintln(os.Stderr, "  sudo setcap cap_net_admin+ep ./ble-locate")
		fmt.Fprintln(os.Stderr, "  ./ble-locate --demo    (demo mode, no hardware needed)")
		return errors.Wrap(err, "start scanners")
	}

	final, err := p.Run()
	if m, ok := final.(app.AppModel); ok {
		log.WithField("state", m.String()).Info("Stopped")
	}
	return err
}
