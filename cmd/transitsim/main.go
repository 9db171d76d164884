package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mini-rodalies-3d/transitsim/internal/api"
	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/config"
	"github.com/mini-rodalies-3d/transitsim/internal/db"
	"github.com/mini-rodalies-3d/transitsim/internal/logging"
	"github.com/mini-rodalies-3d/transitsim/internal/recorder"
	"github.com/mini-rodalies-3d/transitsim/internal/sim"
)

// reportStore is satisfied by both *db.DB and *db.Postgres
type reportStore interface {
	recorder.Store
	api.Reports
	EnsureSchema(ctx context.Context) error
	Close() error
}

func main() {
	// .env.local overrides .env for local development
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := config.Load()
	logging.Init(cfg.Debug)
	log.Println("Starting transit simulator...")
	log.Printf("Config loaded: network=%s time_scale=%d seed=%d snapshot_interval=%v retention=%v",
		cfg.NetworkFile, cfg.TimeScale, cfg.Seed, cfg.SnapshotInterval, cfg.RetentionDuration)

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Network and simulation
	// ═══════════════════════════════════════════════════════
	network, err := config.LoadNetwork(cfg.NetworkFile)
	if err != nil {
		log.Fatalf("Failed to load network: %v", err)
	}

	clk, err := clock.New(cfg.TimeScale)
	if err != nil {
		log.Fatalf("Failed to create clock: %v", err)
	}

	simulation, err := sim.New(network, clk, cfg.Seed)
	if err != nil {
		log.Fatalf("Failed to build simulation: %v", err)
	}
	log.Printf("Network loaded: %d stations, %d routes, %d buses",
		len(network.Stations), len(network.Routes), len(network.Buses))

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Report store
	// ═══════════════════════════════════════════════════════
	store, err := openStore(cfg)
	if err != nil {
		// Continue anyway: the simulation and live API work without reports
		log.Printf("Warning: run reports disabled: %v", err)
	}

	var rec *recorder.Recorder
	var reports api.Reports
	if store != nil {
		defer store.Close()
		reports = store

		rec = recorder.New(store, simulation, db.Run{
			TimeScale:    cfg.TimeScale,
			Seed:         cfg.Seed,
			StationCount: len(network.Stations),
			BusCount:     len(network.Buses),
		}, cfg.RetentionDuration)
		if err := rec.Start(context.Background()); err != nil {
			log.Printf("Warning: failed to register run, reports disabled: %v", err)
			rec = nil
		}
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Run simulation, recorder and API
	// ═══════════════════════════════════════════════════════
	simCtx, stopSim := context.WithCancel(context.Background())
	defer stopSim()

	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		simulation.Run(simCtx)
	}()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan struct{})
	if rec != nil {
		go func() {
			defer close(loopDone)
			rec.Loop(loopCtx, cfg.SnapshotInterval)
		}()
	} else {
		close(loopDone)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(api.NewHandler(simulation, reports), cfg.AllowedOrigins),
	}
	go func() {
		api.LogEndpoints(cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// ═══════════════════════════════════════════════════════
	// PHASE 4: Graceful shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	stopLoop()
	<-loopDone

	// Final snapshot while the components still answer queries
	if rec != nil {
		if err := rec.Poll(shutdownCtx); err != nil {
			log.Printf("Final snapshot error: %v", err)
		}
		if err := rec.Finish(shutdownCtx); err != nil {
			log.Printf("Failed to finish run: %v", err)
		}
	}

	stopSim()
	select {
	case <-simDone:
	case <-shutdownCtx.Done():
		log.Println("Simulation did not stop in time")
	}
	log.Println("Goodbye!")
}

// openStore connects to PostgreSQL when DATABASE_URL is set, SQLite otherwise
func openStore(cfg *config.Config) (reportStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store reportStore
	if cfg.DatabaseURL != "" {
		pg, err := db.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = pg
	} else {
		sqlite, err := db.Connect(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		store = sqlite
	}

	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	log.Println("Database initialized")
	return store, nil
}
