package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	sim "github.com/bucky-sim/bucky/sim"
	"github.com/bucky-sim/bucky/sim/data"
	"github.com/bucky-sim/bucky/sim/params"
	"github.com/bucky-sim/bucky/sim/spatial"
)

// SummaryFile is written to the output directory by mc.
const SummaryFile = "mc_summary.yml"

var (
	mcDataDir     string // Input data directory
	mcCacheDir    string // Reduction cache directory
	mcOutDir      string // Output directory
	mcRuns        int    // Number of Monte Carlo runs
	mcSeed        int64  // Batch seed
	mcWorkers     int    // Concurrent runs
	mcBackend     string // Numeric backend
	mcMetricsAddr string // Prometheus listen address
)

// mcCmd runs a Monte Carlo batch
var mcCmd = &cobra.Command{
	Use:   "mc <par path>",
	Short: "Run a batch of Monte Carlo runs and write a summary",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadSettings(settingsPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		// Flags override the settings file only when given explicitly.
		if cmd.Flags().Changed("data-dir") {
			settings.DataDir = mcDataDir
		}
		if cmd.Flags().Changed("cache-dir") {
			settings.CacheDir = mcCacheDir
		}
		if cmd.Flags().Changed("out") {
			settings.OutputDir = mcOutDir
		}
		if cmd.Flags().Changed("workers") {
			settings.Workers = mcWorkers
		}
		if cmd.Flags().Changed("backend") {
			settings.Backend = mcBackend
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var srv *http.Server
		if mcMetricsAddr != "" {
			srv = serveMetrics(mcMetricsAddr)
		}

		startTime := time.Now()
		summary, err := runMC(ctx, settings, args[0], mcRuns, mcSeed)
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logrus.Warnf("Metrics server shutdown: %v", err)
			}
			cancel()
		}
		if err != nil {
			logrus.Fatalf("Monte Carlo failed: %v", err)
		}
		path, err := writeSummary(settings.OutputDir, summary)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Wrote %s (%d accepted, %d rejected) in %v",
			path, len(summary.Accepted), len(summary.Rejected), time.Since(startTime))
	},
}

type runSummary struct {
	ID              int       `yaml:"id"`
	Key             int64     `yaml:"key"`
	Adm0Susceptible float64   `yaml:"adm0_susceptible"`
	Adm1Susceptible []float64 `yaml:"adm1_susceptible,flow"`
}

type rejectedRun struct {
	ID    int    `yaml:"id"`
	Key   int64  `yaml:"key"`
	Error string `yaml:"error"`
}

type mcSummary struct {
	Seed     int64         `yaml:"seed"`
	Backend  string        `yaml:"backend"`
	Adm1IDs  []int         `yaml:"adm1_ids,flow"`
	Adm1N    []float64     `yaml:"adm1_population,flow"`
	Accepted []runSummary  `yaml:"accepted"`
	Rejected []rejectedRun `yaml:"rejected"`
}

// runMC loads the inputs named by settings and runs n Monte Carlo runs.
func runMC(ctx context.Context, settings Settings, parPath string, n int, seed int64) (*mcSummary, error) {
	backend, err := settings.backend()
	if err != nil {
		return nil, err
	}
	var cache spatial.Cache
	if settings.CacheDir != "" {
		bc, err := spatial.OpenBadgerCache(settings.CacheDir)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := bc.Close(); err != nil {
				logrus.Warnf("Closing reduction cache: %v", err)
			}
		}()
		cache = bc
	}
	opts, err := settings.dataOptions(backend, cache)
	if err != nil {
		return nil, err
	}
	ds, err := data.Load(settings.DataDir, opts)
	if err != nil {
		return nil, fmt.Errorf("load data: %w", err)
	}
	base, err := params.Load(parPath)
	if err != nil {
		return nil, fmt.Errorf("load parameters: %w", err)
	}
	env, err := sim.NewEnv(base, backend, nil, ds, settings.Tolerances)
	if err != nil {
		return nil, err
	}

	logrus.Infof("Starting %d Monte Carlo runs on the %s backend (seed %d)", n, backend.Name(), seed)
	res, err := env.RunBatch(ctx, n, seed, settings.Workers)
	if err != nil {
		return nil, err
	}

	adm1N, err := ds.Adm1Nj()
	if err != nil {
		return nil, err
	}
	summary := &mcSummary{
		Seed:    seed,
		Backend: backend.Name(),
		Adm1IDs: ds.Hierarchy.CoarseIDs(),
		Adm1N:   slices.Clone(adm1N.Data()),
	}
	for _, r := range res.Accepted {
		summary.Accepted = append(summary.Accepted, runSummary{
			ID:              r.ID,
			Key:             int64(r.Key),
			Adm0Susceptible: r.Adm0Susceptible,
			Adm1Susceptible: slices.Clone(r.Adm1Susceptible.Data()),
		})
	}
	for _, f := range res.Rejected {
		summary.Rejected = append(summary.Rejected, rejectedRun{ID: f.ID, Key: int64(f.Key), Error: f.Err.Error()})
	}
	return summary, nil
}

// writeSummary writes the batch summary as YAML into dir.
func writeSummary(dir string, summary *mcSummary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	out, err := yaml.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	path := filepath.Join(dir, SummaryFile)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}

// serveMetrics exposes the default Prometheus registry on addr until shut down.
func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logrus.Infof("Metrics server listening on http://%s/metrics", addr)
		// ListenAndServe returns ErrServerClosed on graceful shutdown.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("Metrics server failed: %v", err)
		}
	}()
	return srv
}

func init() {
	mcCmd.Flags().StringVar(&mcDataDir, "data-dir", "data", "Directory holding the census and historical CSVs")
	mcCmd.Flags().StringVar(&mcCacheDir, "cache-dir", "", "Directory for the persistent reduction cache (memory when empty)")
	mcCmd.Flags().StringVar(&mcOutDir, "out", "output", "Output directory")
	mcCmd.Flags().IntVar(&mcRuns, "n-mc", 100, "Number of Monte Carlo runs")
	mcCmd.Flags().Int64Var(&mcSeed, "seed", 42, "Seed for the batch")
	mcCmd.Flags().IntVar(&mcWorkers, "workers", 0, "Concurrent runs (0 uses GOMAXPROCS)")
	mcCmd.Flags().StringVar(&mcBackend, "backend", "host", "Numeric backend (host, parallel)")
	mcCmd.Flags().StringVar(&mcMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the batch")

	rootCmd.AddCommand(mcCmd)
}
