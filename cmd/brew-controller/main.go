// Command brew-controller runs the drink-machine control daemon: the FSM
// tick loop against the GPIO port, the HTTP control surface and MQTT
// telemetry.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sweeney/brew-controller/internal/hal"
	"github.com/sweeney/brew-controller/internal/history"
	"github.com/sweeney/brew-controller/internal/logger"
	"github.com/sweeney/brew-controller/internal/machine"
	"github.com/sweeney/brew-controller/internal/mqtt"
	"github.com/sweeney/brew-controller/internal/settings"
	"github.com/sweeney/brew-controller/internal/status"
	"github.com/sweeney/brew-controller/internal/web"
)

type daemonConfig struct {
	HTTPAddr     string        `mapstructure:"http_addr"`
	Broker       string        `mapstructure:"broker"`
	Poll         time.Duration `mapstructure:"poll"`
	Heartbeat    time.Duration `mapstructure:"heartbeat"`
	HALMode      string        `mapstructure:"hal"`
	SettingsPath string        `mapstructure:"settings_path"`
	HistoryPath  string        `mapstructure:"history_path"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFile      string        `mapstructure:"log_file"`
}

func main() {
	configPath := flag.String("config", "", "Daemon config file (YAML, optional)")
	httpAddr := flag.String("http", ":8080", "HTTP control API address (empty to disable)")
	broker := flag.String("broker", "tcp://127.0.0.1:1883", `MQTT broker address ("off" to disable)`)
	poll := flag.Duration("poll", 400*time.Millisecond, "FSM tick interval")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	halMode := flag.String("hal", "real", `Hardware port: "real" or "fake" (bench mode)`)
	settingsPath := flag.String("settings", "/var/lib/brew-controller/settings.yaml", "Recipe settings file")
	historyPath := flag.String("history", "/var/lib/brew-controller/history.db", "Cycle history database (empty to disable)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "Rotated log file path (empty for console only)")
	printState := flag.Bool("print-state", false, "Read sensors once, print, and exit")
	flag.Parse()

	cfg := daemonConfig{
		HTTPAddr:     *httpAddr,
		Broker:       *broker,
		Poll:         *poll,
		Heartbeat:    *heartbeat,
		HALMode:      *halMode,
		SettingsPath: *settingsPath,
		HistoryPath:  *historyPath,
		LogLevel:     *logLevel,
		LogFile:      *logFile,
	}

	if *configPath != "" {
		if err := loadConfigFile(*configPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile, Console: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *printState, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

// loadConfigFile overlays file values on top of the flag values already in
// cfg: any key present in the file wins over the flag default.
func loadConfigFile(path string, cfg *daemonConfig) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("http_addr", cfg.HTTPAddr)
	v.SetDefault("broker", cfg.Broker)
	v.SetDefault("poll", cfg.Poll)
	v.SetDefault("heartbeat", cfg.Heartbeat)
	v.SetDefault("hal", cfg.HALMode)
	v.SetDefault("settings_path", cfg.SettingsPath)
	v.SetDefault("history_path", cfg.HistoryPath)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func run(cfg daemonConfig, printState bool, log *zap.Logger) error {
	var port hal.Port
	switch cfg.HALMode {
	case "fake":
		log.Warn("running against the fake hardware port")
		port = hal.NewFake()
	case "real":
		r, err := hal.NewReal(hal.DefaultPins())
		if err != nil {
			return fmt.Errorf("init hardware: %w", err)
		}
		port = r
	default:
		return fmt.Errorf("unknown hal mode %q", cfg.HALMode)
	}
	defer port.Close()

	if printState {
		return doPrintState(port)
	}

	store, err := settings.NewStore(cfg.SettingsPath, log.Named("settings"))
	if err != nil {
		return fmt.Errorf("init settings: %w", err)
	}
	store.Watch()

	mach := &lockedMachine{c: machine.New(port, store, log.Named("fsm"), time.Now)}

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:       cfg.Poll.Milliseconds(),
		Broker:       cfg.Broker,
		HTTPAddr:     cfg.HTTPAddr,
		SettingsPath: cfg.SettingsPath,
		HistoryPath:  cfg.HistoryPath,
		HALMode:      cfg.HALMode,
	})

	var publisher mqtt.Publisher
	var connStatus mqtt.ConnectionStatus
	if cfg.Broker != "" && cfg.Broker != "off" {
		pub, err := mqtt.NewRealPublisher(cfg.Broker)
		if err != nil {
			// Telemetry is not worth refusing to make coffee over.
			log.Warn("mqtt unavailable, continuing without telemetry", zap.Error(err))
		} else {
			publisher = pub
			connStatus = pub
			defer pub.Close()
		}
	}

	var hist *history.Store
	if cfg.HistoryPath != "" {
		hist, err = history.Open(cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("init history: %w", err)
		}
		defer hist.Close()
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, mach, store, tracker, hist, log.Named("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http control api listening", zap.String("addr", cfg.HTTPAddr))
	}

	if publisher != nil {
		startup := mqtt.SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Warn("failed to publish startup event", zap.Error(err))
		}
	}

	log.Info("started",
		zap.Duration("poll", cfg.Poll),
		zap.String("broker", cfg.Broker),
		zap.String("hal", cfg.HALMode))

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(mach, port, tracker, publisher, connStatus, hist, cfg.Heartbeat, time.Now, ticker.C, sigCh, log)
}

func doPrintState(port hal.Port) error {
	if !port.Ready() {
		return fmt.Errorf("hardware port not ready")
	}
	fmt.Printf("cup: %v\n", port.CupPresent())
	if temp, ok := port.ReadInternalTemp(); ok {
		fmt.Printf("internal temp: %.1f C\n", temp)
	} else {
		fmt.Println("internal temp: fault")
	}
	if temp, ok := port.ReadExternalTemp(); ok {
		fmt.Printf("external temp: %.1f C\n", temp)
	} else {
		fmt.Println("external temp: fault")
	}
	fmt.Printf("limit upper: %v\n", port.ReadLimitUpper())
	fmt.Printf("limit lower: %v\n", port.ReadLimitLower())
	return nil
}

// runLoop drives the controller until a shutdown signal arrives. The tick
// and signal channels are injected so tests can feed them by hand.
func runLoop(m *lockedMachine, port hal.Port, tracker *status.Tracker, publisher mqtt.Publisher, connStatus mqtt.ConnectionStatus, hist *history.Store, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, log *zap.Logger) error {
	startTime := now()
	lastHeartbeat := startTime

	for {
		select {
		case s := <-sig:
			log.Info("shutting down", zap.String("signal", s.String()))

			// Abort any in-flight cycle so every actuator is off before the
			// process exits.
			m.Stop()

			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if publisher != nil {
				event := mqtt.SystemEvent{
					Timestamp: now(),
					Event:     "SHUTDOWN",
					Reason:    signalName,
					Retained:  true,
				}
				if err := publisher.PublishSystem(event); err != nil {
					log.Warn("failed to publish shutdown event", zap.Error(err))
				}
			}
			return nil

		case <-tick:
			t := now()
			events := m.Tick()

			state, step, errKind, busy, cycleID, ord := m.Status()
			tracker.UpdateMachine(state, step, errKind, busy, cycleID, ord.Recipe)

			// Active phases already ping the ultrasonic once per tick; a
			// second ping here would double the echo budget, so the idle
			// reading is only refreshed between cycles.
			cup := true
			if !busy {
				cup = port.CupPresent()
			}
			intTemp, intOK := port.ReadInternalTemp()
			extTemp, extOK := port.ReadExternalTemp()
			tracker.UpdateSensors(cup, intTemp, intOK, extTemp, extOK)

			if connStatus != nil {
				tracker.SetMQTTConnected(connStatus.IsConnected())
			}

			for _, ev := range events {
				tracker.CountEvent(ev)
				if publisher != nil {
					if err := publisher.Publish(ev); err != nil {
						log.Warn("publish failed", zap.Error(err))
					}
				}
				if hist != nil {
					if err := hist.RecordEvent(ev, ord); err != nil {
						log.Warn("history record failed", zap.Error(err))
					}
				}
			}

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				if publisher != nil {
					snap := tracker.Snapshot()
					event := mqtt.SystemEvent{
						Timestamp: t,
						Event:     "HEARTBEAT",
						Heartbeat: &mqtt.HeartbeatInfo{
							UptimeSeconds:   int64(t.Sub(startTime).Seconds()),
							CyclesStarted:   snap.Counts.Started,
							CyclesCompleted: snap.Counts.Completed,
							CyclesFailed:    snap.Counts.Failed,
						},
					}
					if err := publisher.PublishSystem(event); err != nil {
						log.Warn("failed to publish heartbeat", zap.Error(err))
					}
				}
			}
		}
	}
}
