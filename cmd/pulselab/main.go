// Command pulselab runs the pulse-oximetry simulator as a daemon: the engine
// ticks in real time, readouts are optionally recorded to sqlite and written
// to a UART, and an HTTP server exposes configuration and outputs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pulse.lab/internal/config"
	"github.com/banshee-data/pulse.lab/internal/db"
	"github.com/banshee-data/pulse.lab/internal/monitor"
	"github.com/banshee-data/pulse.lab/internal/monitoring"
	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/estimate"
	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
	"github.com/banshee-data/pulse.lab/internal/readoutmux"
	"github.com/banshee-data/pulse.lab/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	configPath  = flag.String("config", "", "Path to a JSON tuning file (default: built-in defaults)")
	dbPath      = flag.String("db", "pulselab.db", "Path to the sqlite database used with -record")
	record      = flag.Bool("record", false, "Record every readout to the database")
	serialPort  = flag.String("serial-port", "", "Write readout lines to this UART (empty disables)")
	baudRate    = flag.Int("baud", readoutmux.DefaultBaudRate, "UART baud rate")
	algorithm   = flag.String("algorithm", "", "Initial algorithm: basic, dsp or ml (overrides config)")
	emitter     = flag.String("emitter", "", "Initial emitter: green_only, red_ir or multi (overrides config)")
	seed        = flag.Int64("seed", 0, "Random seed (overrides config when set)")
	verbose     = flag.Bool("verbose", false, "Log per-tick detail")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}
	monitoring.SetVerbose(*verbose)

	cfg, err := engineConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	engine, err := sim.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	var store *db.DB
	if *record {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()
		id, err := store.StartSession(cfg, time.Now())
		if err != nil {
			log.Fatalf("Failed to start session: %v", err)
		}
		engine.AddSink(store)
		log.Printf("Recording readouts to %s (session %s)", *dbPath, id)
	}

	var readouts *readoutmux.Mux
	if *serialPort != "" {
		readouts, err = readoutmux.NewSerialMux(*serialPort, readoutmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("Failed to open serial port: %v", err)
		}
		log.Printf("Writing readout lines to %s at %d baud", *serialPort, *baudRate)
	} else {
		readouts = readoutmux.New(nil)
	}
	defer readouts.Close()
	engine.AddSink(readouts)

	server, err := monitor.NewWebServer(monitor.WebServerConfig{
		Address:  *listen,
		Engine:   engine,
		DB:       store,
		Readouts: readouts,
	})
	if err != nil {
		log.Fatalf("Failed to create web server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down")
	engine.Stop()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// engineConfig loads the tuning file, if any, and applies flag overrides.
func engineConfig() (sim.Config, error) {
	simCfg := config.EmptySimConfig()
	if *configPath != "" {
		loaded, err := config.LoadSimConfig(*configPath)
		if err != nil {
			return sim.Config{}, err
		}
		simCfg = loaded
	}
	cfg := sim.ConfigFromSimConfig(simCfg)

	if *algorithm != "" {
		kind, err := estimate.ParseKind(*algorithm)
		if err != nil {
			return sim.Config{}, err
		}
		cfg.Algorithm = kind
	}
	if *emitter != "" {
		em, err := ppg.ParseEmitter(*emitter)
		if err != nil {
			return sim.Config{}, err
		}
		cfg.Emitter = em
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			cfg.Seed = *seed
		}
	})
	if *listen == "" {
		return sim.Config{}, errors.New("listen address is required")
	}
	return cfg, nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\nUsage: pulselab [flags]\n\n", version.Get())
		flag.PrintDefaults()
	}
}
