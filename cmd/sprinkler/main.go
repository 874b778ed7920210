// Command sprinkler drives irrigation zone relays from MQTT commands, with a
// hard runtime ceiling enforced locally on every zone.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/sweeney/sprinkler-controller/internal/config"
	"github.com/sweeney/sprinkler-controller/internal/controller"
	"github.com/sweeney/sprinkler-controller/internal/gpio"
	"github.com/sweeney/sprinkler-controller/internal/history"
	"github.com/sweeney/sprinkler-controller/internal/logging"
	"github.com/sweeney/sprinkler-controller/internal/modbus"
	"github.com/sweeney/sprinkler-controller/internal/mqtt"
	"github.com/sweeney/sprinkler-controller/internal/settings"
	"github.com/sweeney/sprinkler-controller/internal/status"
	"github.com/sweeney/sprinkler-controller/internal/telemetry"
	"github.com/sweeney/sprinkler-controller/internal/web"
	"github.com/sweeney/sprinkler-controller/internal/zone"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configPath  string
	printState  bool
	provision   bool
	showVersion bool

	address  string
	port     string
	user     string
	password string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("sprinkler", pflag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", config.DefaultPath, "Path to configuration file")
	fs.BoolVar(&o.printState, "print-state", false, "Print every zone's output state and exit")
	fs.BoolVar(&o.provision, "provision", false, "Write broker settings from --address/--port/--user/--password and exit")
	fs.BoolVarP(&o.showVersion, "version", "v", false, "Print version and exit")
	fs.StringVar(&o.address, "address", "", "Broker address (with --provision)")
	fs.StringVar(&o.port, "port", settings.DefaultPort, "Broker port (with --provision)")
	fs.StringVar(&o.user, "user", "", "Broker username (with --provision)")
	fs.StringVar(&o.password, "password", "", "Broker password (with --provision)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "sprinkler: %v\n", err)
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Printf("sprinkler %s\n", version)
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if opts.provision {
		return provision(os.Stdout, cfg.MQTT.SettingsFile, opts)
	}

	if opts.printState {
		return printState(os.Stdout, cfg, openInspector)
	}

	log := logging.New(cfg.Logging, version)

	out, err := openOutputs(cfg)
	if err != nil {
		return fmt.Errorf("init outputs: %w", err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Error("failed to release outputs", "error", err)
		}
	}()

	specs := make([]zone.Spec, len(cfg.Zones))
	for i, z := range cfg.Zones {
		specs[i] = zone.Spec{Name: z.Name}
	}
	monitor, err := zone.NewMonitor(specs, cfg.Safety.MaxRuntime, out)
	if err != nil {
		return fmt.Errorf("init zones: %w", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		ClientID:       cfg.Device.ClientID,
		Driver:         cfg.Output.Driver,
		MaxRuntime:     cfg.Safety.MaxRuntime,
		SweepInterval:  cfg.Safety.SweepInterval,
		StatusInterval: cfg.MQTT.StatusInterval,
		HTTPAddr:       cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	transport := mqtt.NewPahoTransport(mqtt.Options{
		ClientID:       cfg.Device.ClientID,
		WillTopic:      cfg.StatusTopic(),
		QoS:            byte(cfg.MQTT.QoS),
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		PublishTimeout: cfg.MQTT.PublishTimeout,
		InboxSize:      mqtt.DefaultInboxSize,
	}, log)

	ctl := controller.New(controller.Config{
		Topics: mqtt.Topics{
			Prefix:    cfg.MQTT.TopicPrefix,
			Discovery: cfg.MQTT.DiscoveryPrefix,
		},
		Device: mqtt.Device{
			ID:    cfg.Device.ClientID,
			Name:  cfg.Device.Name,
			Model: cfg.Device.Model,
		},
		QoS:               byte(cfg.MQTT.QoS),
		ReconnectInterval: cfg.MQTT.ReconnectInterval,
		StatusInterval:    cfg.MQTT.StatusInterval,
		ConnectTimeout:    cfg.MQTT.ConnectTimeout,
		StepTimeout:       cfg.MQTT.PublishTimeout,
		Clock:             time.Now,
	}, monitor, transport, settings.NewFileStore(cfg.MQTT.SettingsFile), tracker, log)

	var runs web.RunLister
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			log.Warn("run history disabled", "path", cfg.History.Path, "error", err)
		} else {
			defer store.Close()
			ctl.SetHistory(store)
			runs = store
			log.Info("run history enabled", "path", store.Path())
		}
	}

	if cfg.InfluxDB.Enabled {
		client, err := telemetry.Connect(cfg.InfluxDB, cfg.Device.ClientID)
		if err != nil {
			log.Warn("telemetry disabled", "url", cfg.InfluxDB.URL, "error", err)
		} else {
			defer client.Close()
			client.SetOnError(func(err error) {
				log.Warn("telemetry write failed", "error", err)
			})
			ctl.SetTelemetry(client)
			log.Info("telemetry enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, runs)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	log.Info("started",
		"zones", len(cfg.Zones),
		"driver", cfg.Output.Driver,
		"max_runtime", cfg.Safety.MaxRuntime,
		"sweep", cfg.Safety.SweepInterval,
		"settings", cfg.MQTT.SettingsFile,
	)

	ticker := time.NewTicker(cfg.Safety.SweepInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctl, transport, time.Now, ticker.C, &cutoffTimer{}, sigCh, log)
}

// wakeup is a one-shot timer that can be rearmed.
type wakeup interface {
	Arm(d time.Duration) <-chan time.Time
	Stop()
}

// cutoffTimer wakes the loop at the next ceiling deadline.
type cutoffTimer struct {
	t *time.Timer
}

func (c *cutoffTimer) Arm(d time.Duration) <-chan time.Time {
	if c.t == nil {
		c.t = time.NewTimer(d)
		return c.t.C
	}
	c.Stop()
	c.t.Reset(d)
	return c.t.C
}

func (c *cutoffTimer) Stop() {
	if c.t != nil && !c.t.Stop() {
		select {
		case <-c.t.C:
		default:
		}
	}
}

// runLoop is the single control loop. Every tick drains queued commands and
// then runs the sweep and connection timers; commands arriving between
// ticks are handled as soon as the transport signals them. While a zone
// runs, cutoff is armed for its ceiling deadline so the sweep lands on it
// regardless of the tick interval.
func runLoop(ctl *controller.Controller, transport mqtt.Transport, now func() time.Time, tick <-chan time.Time, cutoff wakeup, sig <-chan os.Signal, log *logging.Logger) error {
	defer cutoff.Stop()
	ctl.OnTick(now())

	for {
		var deadline <-chan time.Time
		if d, ok := ctl.NextSweep(); ok {
			deadline = cutoff.Arm(d)
		} else {
			cutoff.Stop()
		}

		select {
		case s := <-sig:
			log.Info("received signal, shutting down", "signal", s.String())
			ctl.Shutdown(now())
			return nil

		case <-transport.Notify():
			handleInbound(ctl, transport, now)

		case <-tick:
			handleInbound(ctl, transport, now)
			ctl.OnTick(now())

		case <-deadline:
			handleInbound(ctl, transport, now)
			ctl.OnTick(now())
		}
	}
}

func handleInbound(ctl *controller.Controller, transport mqtt.Transport, now func() time.Time) {
	for _, m := range transport.Drain() {
		ctl.HandleMessage(m.Topic, m.Payload, now())
	}
}

func openOutputs(cfg *config.Config) (gpio.Writer, error) {
	if cfg.Output.Driver == config.DriverModbus {
		board, err := modbus.NewRelayBoard(modbus.Config{
			Endpoint: cfg.Output.Modbus.Address,
			UnitID:   uint8(cfg.Output.Modbus.UnitID),
			Timeout:  cfg.Output.Modbus.Timeout,
		}, cfg.Pins())
		if err != nil {
			return nil, err
		}
		return board, nil
	}

	w, err := gpio.NewRealWriter(cfg.Output.GPIO.Chip, cfg.Pins(), cfg.Output.GPIO.ActiveLow)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// openInspector opens the configured outputs for reading only. Nothing is
// switched, so a running daemon's zones are left alone.
func openInspector(cfg *config.Config) (gpio.Reader, error) {
	if cfg.Output.Driver == config.DriverModbus {
		board, err := modbus.InspectRelayBoard(modbus.Config{
			Endpoint: cfg.Output.Modbus.Address,
			UnitID:   uint8(cfg.Output.Modbus.UnitID),
			Timeout:  cfg.Output.Modbus.Timeout,
		}, cfg.Pins())
		if err != nil {
			return nil, err
		}
		return board, nil
	}

	r, err := gpio.NewRealReader(cfg.Output.GPIO.Chip, cfg.Pins(), cfg.Output.GPIO.ActiveLow)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// provision validates and writes the broker settings record.
func provision(w io.Writer, path string, opts options) error {
	rec := settings.Record{
		Server:   opts.address,
		Port:     opts.port,
		User:     opts.user,
		Password: opts.password,
	}
	store := settings.NewFileStore(path)
	if err := store.Save(rec); err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	fmt.Fprintf(w, "wrote broker settings for %s:%s to %s\n", rec.Server, rec.Port, store.Path())
	return nil
}

func printState(w io.Writer, cfg *config.Config, open func(*config.Config) (gpio.Reader, error)) error {
	in, err := open(cfg)
	if err != nil {
		return fmt.Errorf("open outputs: %w", err)
	}
	defer in.Close()

	states, err := in.States()
	if err != nil {
		return fmt.Errorf("read outputs: %w", err)
	}
	names := cfg.ZoneNames()
	for i, on := range states {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		fmt.Fprintf(w, "Zone %d (%s): %s\n", i+1, name, stateString(on))
	}
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func stateString(on bool) string {
	if on {
		return string(zone.StateOn)
	}
	return string(zone.StateOff)
}
