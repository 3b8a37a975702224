// Command wallpaint runs the wall tracking core behind its HTTP surface.
// Observation batches normally arrive from the AR tracking engine; with
// -simulate a synthetic feed drives the core instead so the UI can be
// exercised without a device.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hueview/wallpaint/internal/api"
	"github.com/hueview/wallpaint/internal/version"
	"github.com/hueview/wallpaint/internal/wall"
	"github.com/hueview/wallpaint/internal/walldb"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "", "SQLite file for event recording (empty disables recording)")
	configFile = flag.String("config", "", "Optional JSON config file")
	note       = flag.String("note", "", "Note stored with the recorded run")
	simulate   = flag.Bool("simulate", false, "Drive the core with a synthetic observation feed")
	simWalls   = flag.Int("sim-walls", 3, "Number of synthetic walls")
	simPeriod  = flag.Duration("sim-period", 50*time.Millisecond, "Synthetic feed tick period")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("wallpaint %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := wall.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = wall.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	ctrl, err := wall.NewController(cfg)
	if err != nil {
		log.Fatalf("failed to create controller: %v", err)
	}

	if *dbFile != "" {
		db, err := walldb.Open(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		rec, err := walldb.NewRecorder(db, *note)
		if err != nil {
			log.Fatalf("failed to start recording run: %v", err)
		}
		if err := ctrl.Attach("recorder", rec.Sink()); err != nil {
			log.Fatalf("failed to attach recorder: %v", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Printf("failed to close recording run: %v", err)
			}
		}()
		log.Printf("recording events to %s, run %s", *dbFile, rec.RunID())
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the controller's throttle worker
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil {
			log.Printf("controller stopped: %v", err)
		}
		log.Print("controller routine terminated")
	}()

	if *simulate {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSimulatedFeed(ctx, ctrl, *simWalls, *simPeriod)
			log.Print("simulated feed terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(ctrl).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// runSimulatedFeed publishes jittered observation batches for a fixed set of
// synthetic walls until the context is cancelled. Walls occasionally drop out
// for a few ticks to exercise removal and re-detection.
func runSimulatedFeed(ctx context.Context, ctrl *wall.Controller, walls int, period time.Duration) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	absent := make(map[int]int)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		batch := make([]wall.SurfaceObservation, 0, walls)
		for i := 0; i < walls; i++ {
			if absent[i] > 0 {
				absent[i]--
				continue
			}
			if rng.Float64() < 0.01 {
				absent[i] = 5 + rng.Intn(10)
				continue
			}

			pose := wall.IdentityTransform()
			pose[3] = 1.5 + float64(i) + rng.Float64()*0.02
			pose[7] = 1.2
			pose[11] = 0.5 * float64(i)
			batch = append(batch, wall.SurfaceObservation{
				ID:        fmt.Sprintf("sim-wall-%d", i),
				Alignment: wall.AlignmentVertical,
				Extent: wall.Extent{
					Width:  2.0 + rng.Float64()*0.05,
					Height: 2.4 + rng.Float64()*0.05,
				},
				Pose: pose,
			})
		}
		ctrl.OnObservationBatch(batch, wall.IdentityTransform())
	}
}
