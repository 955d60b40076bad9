package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"volfusion/internal/models"
	"volfusion/pkg/config"
	"volfusion/pkg/logger"
	"volfusion/pkg/pipeline"
	"volfusion/pkg/series"
	"volfusion/pkg/session"
	"volfusion/pkg/slicestate"
	"volfusion/pkg/visualization"
)

var _ slicestate.Viewer = (*visualization.Viewer)(nil)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code. Every
// deferred cleanup, including closing the log file, happens before it returns.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	// Parse command line arguments
	flags := flag.NewFlagSet("volfusion", flag.ContinueOnError)
	configPath := flags.String("config", "volfusion.yaml", "YAML configuration file (defaults are used when it does not exist)")
	writeConfig := flags.Bool("write-config", false, "Write the default configuration to -config and exit")
	fixedDir := flags.String("fixed", "", "Directory containing the fixed (reference) DICOM series")
	movingDir := flags.String("moving", "", "Directory containing the moving DICOM series")
	orientation := flags.String("orientation", "axial", "Initial view orientation: axial, coronal or sagittal")
	opacity := flags.Float64("opacity", 0, "Moving volume opacity in the fusion, in [0,1] (overrides config)")
	spacing := flags.Float64("spacing", 0, "Isotropic target spacing in mm (overrides config)")
	numCores := flags.Int("cores", 0, "Number of CPU cores used per resampling stage (overrides config)")
	snapshots := flags.String("snapshots", "", "Write a PNG snapshot of every view to this directory")
	exportDir := flags.String("export", "", "Save every slice of every view along all three orientations to this directory")
	zoom := flags.Int("zoom", 2, "Snapshot magnification")
	metricsAddr := flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	interactive := flags.Bool("interactive", false, "Read view commands from stdin after loading")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Printf("Failed to write config: %v", err)
			return 1
		}
		fmt.Fprintf(stdout, "Default configuration written to %s\n", *configPath)
		return 0
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	// Only flags given explicitly override the configuration file
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "opacity":
			cfg.Processing.MovingOpacity = *opacity
		case "spacing":
			cfg.Processing.TargetSpacing = *spacing
		case "cores":
			cfg.Processing.NumCores = *numCores
		case "snapshots":
			cfg.Output.SnapshotDir = *snapshots
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	initial, err := models.ParseOrientation(*orientation)
	if err != nil {
		log.Printf("Invalid orientation: %v", err)
		return 1
	}

	if *fixedDir == "" && *movingDir == "" && !*interactive {
		flags.Usage()
		return 1
	}

	lg := logger.New(logger.FileConfig{
		Filename: cfg.Output.LogFile,
		MaxSize:  cfg.Output.LogMaxSizeMB,
		MaxAge:   cfg.Output.LogMaxAgeDays,
	}, cfg.Output.Verbose)
	if c, ok := lg.(io.Closer); ok {
		defer c.Close()
	}

	fmt.Fprintln(stdout, "================================")
	fmt.Fprintln(stdout, "VOLFUSION: MULTI-SERIES VOLUME FUSION AND SYNCHRONIZED SLICE VIEWING")
	fmt.Fprintln(stdout, "================================")

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, lg)
	}

	cache := visualization.NewSliceCache(cfg.Display.SliceCacheMB)
	var viewers [3]*visualization.Viewer
	var views [3]slicestate.Viewer
	for i := range viewers {
		viewers[i] = visualization.NewViewer(cfg.Display.PlaceholderWindow, cfg.Display.PlaceholderLevel, cache)
		views[i] = viewers[i]
	}

	pipe, err := pipeline.New(pipeline.ParamsFromConfig(cfg), series.NewDicomLoader(), lg)
	if err != nil {
		log.Printf("Failed to create pipeline: %v", err)
		return 1
	}
	state := slicestate.NewManager(initial)
	sess, err := session.New(cfg, pipe, state, views, lg)
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		return 1
	}
	defer sess.Close()

	sh := newShell(sess, viewers, cache, stdout, cfg.Output.SnapshotDir, *zoom)

	startTime := time.Now()
	var tasks []*session.Task
	for _, l := range []struct {
		role models.Role
		dir  string
	}{{models.Fixed, *fixedDir}, {models.Moving, *movingDir}} {
		if l.dir == "" {
			continue
		}
		fmt.Fprintf(stdout, "Loading %s series from %s...\n", l.role, l.dir)
		tasks = append(tasks, sess.Load(ctx, l.role, l.dir))
	}

	failed := false
	for _, task := range tasks {
		if err := task.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				log.Printf("Interrupted: %v", ctx.Err())
				return 1
			}
			fmt.Fprintf(stdout, "Failed to load %s series: %v\n", task.Role, err)
			failed = true
		}
	}
	if err := sess.Idle(ctx); err != nil {
		log.Printf("Interrupted: %v", err)
		return 1
	}
	if t := sess.FusionTask(); t != nil {
		if err := t.Err(); err != nil {
			fmt.Fprintf(stdout, "Fusion failed: %v\n", err)
			failed = true
		}
	}
	if len(tasks) > 0 {
		fmt.Fprintf(stdout, "\nProcessing completed in %.2f seconds\n", time.Since(startTime).Seconds())
	}

	for _, role := range models.LoadableRoles {
		if v := sess.Volume(role); v != nil {
			fmt.Fprintf(stdout, "%-7s %s %s (%s), %s\n", role, v.Info.Modality, v.Info.SeriesDescription, v.Info.Directory, v.Geometry)
		}
	}
	sh.printStatus()

	if *snapshots != "" {
		fmt.Fprintf(stdout, "\nSaving snapshots to %s\n", cfg.Output.SnapshotDir)
		paths, err := sh.snapshots(cfg.Output.SnapshotDir)
		for _, p := range paths {
			fmt.Fprintf(stdout, "- %s\n", p)
		}
		if err != nil {
			log.Printf("Warning: %v", err)
		}
	}

	if *exportDir != "" {
		fmt.Fprintln(stdout, "\nExtracting slices along all orientations...")
		exportAll(stdout, viewers, *exportDir)
		fmt.Fprintln(stdout, "Slice extraction completed!")
	}

	if *interactive {
		fmt.Fprintln(stdout, "\nType help for the list of commands.")
		if err := sh.run(ctx, stdin); err != nil {
			log.Printf("Warning: reading commands: %v", err)
		}
	}

	if failed {
		return 1
	}
	return 0
}

// exportAll writes the slice sequences of every view along each orientation.
func exportAll(out io.Writer, viewers [3]*visualization.Viewer, dir string) {
	for _, role := range []models.Role{models.Fixed, models.Moving, models.Fusion} {
		for _, o := range models.Orientations {
			outDir := filepath.Join(dir, role.String(), o.String())
			n, err := viewers[role].SaveSliceSequence(o, outDir)
			if err != nil {
				log.Printf("Warning: Failed to save %s %s slices: %v", role, o, err)
				continue
			}
			fmt.Fprintf(out, "Saved %d %s %s slices to: %s\n", n, role, o, outDir)
		}
	}
}

func serveMetrics(addr string, lg logger.ILogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	lg.Infof("Serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Errorf("Metrics server stopped: %v", err)
	}
}
