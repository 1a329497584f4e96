// Command imu-live reads A/G/M/Q lines from a serial-attached IMU, runs
// one fusion filter over them and serves the orientation over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/imufusion/internal/config"
	"github.com/banshee-data/imufusion/internal/fsutil"
	"github.com/banshee-data/imufusion/internal/fusion"
	"github.com/banshee-data/imufusion/internal/live"
	"github.com/banshee-data/imufusion/internal/monitoring"
	"github.com/banshee-data/imufusion/internal/serialmux"
	"github.com/banshee-data/imufusion/internal/timeutil"
	"github.com/banshee-data/imufusion/internal/units"
	"github.com/banshee-data/imufusion/internal/version"
)

var (
	port        = flag.String("port", "/dev/ttyUSB0,/dev/ttyACM0", "comma-separated serial ports to try in order, or \"mock\"")
	legacyCfg   = flag.String("serial-config", "", "legacy sense.cfg whose serial section overrides -port, -baud and -read-timeout")
	cfgSection  = flag.String("serial-section", "", "section of -serial-config holding the serial keys")
	baud        = flag.Int("baud", serialmux.DefaultBaudRate, "serial baud rate")
	readTimeout = flag.Duration("read-timeout", 0, "serial read timeout (0 blocks)")
	filterName  = flag.String("filter", string(fusion.KindWilson), "filter: madgwick-original, madgwick-revised, wilson or qgd")
	gain        = flag.Float64("gain", 0.1, "filter gain")
	dt          = flag.Float64("dt", 0, "fixed sample period in seconds (0 measures the interval between records)")
	gyroUnits   = flag.String("gyro-units", units.Deg, "units of streamed angular rates: deg or rad")
	angleUnits  = flag.String("units", units.Deg, "default units of reported angles: deg or rad")
	smoothing   = flag.Int("smoothing", 10, "moving-average window of the smoothed angles")
	madgwick    = flag.Bool("madgwick-frame", false, "flip acc and mag about x before the madgwick-original filter")
	rejectField = flag.Bool("reject-field", false, "madgwick-original ignores mag readings outside -field-min..-field-max")
	legacyField = flag.Bool("legacy-field-residual", false, "madgwick-original uses the earlier closed-form mag residual")
	fieldMin    = flag.Float64("field-min", 0, "lower accepted magnetometer magnitude")
	fieldMax    = flag.Float64("field-max", 80, "upper accepted magnetometer magnitude")
	fromDevice  = flag.Bool("init-from-device", false, "start from the first on-board quaternion")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "", "gRPC health listen address (empty disables)")
	replayRate  = flag.Duration("replay-period", 10*time.Millisecond, "line period of -port mock")
	replaySeed  = flag.Uint64("replay-seed", 1, "seed of the synthetic lines replayed by -port mock")
	verbose     = flag.Bool("verbose", false, "log skipped lines and interval corrections")
	showVersion = flag.Bool("version", false, "print version and exit")
)

// filterOptions applies the magnetometer flags to the default options.
func filterOptions(min, max float64, reject, legacy bool) fusion.Options {
	opts := fusion.DefaultOptions()
	opts.FieldMin, opts.FieldMax = min, max
	opts.RejectField = reject
	opts.LegacyFieldResidual = legacy
	return opts
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetVerbose(*verbose)
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if err := units.Validate(*gyroUnits); err != nil {
		log.Fatalf("invalid -gyro-units: %v", err)
	}
	if err := units.Validate(*angleUnits); err != nil {
		log.Fatalf("invalid -units: %v", err)
	}

	kind, err := fusion.ParseKind(*filterName)
	if err != nil {
		log.Fatalf("invalid -filter: %v", err)
	}
	filter, err := fusion.New(kind, *gain, filterOptions(*fieldMin, *fieldMax, *rejectField, *legacyField))
	if err != nil {
		log.Fatalf("failed to create filter: %v", err)
	}

	m, err := openMux()
	if err != nil {
		log.Fatalf("failed to open IMU: %v", err)
	}
	defer m.Close()

	clock := timeutil.RealClock{}
	est := live.NewEstimator(filter, clock, live.Options{
		SamplePeriod:   *dt,
		GyroUnits:      *gyroUnits,
		Smoothing:      *smoothing,
		MadgwickFrame:  *madgwick,
		InitFromDevice: *fromDevice,
	})
	var stats serialmux.Stats

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
		stop()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := est.Run(ctx, m, &stats); err != nil && err != context.Canceled {
			log.Printf("estimator stopped: %v", err)
		}
		log.Printf("estimator routine terminated after %d records", stats.Records())
	}()

	if *grpcListen != "" {
		cfg := live.DefaultHealthConfig()
		cfg.ListenAddr = *grpcListen
		hp := live.NewHealthPublisher(cfg, est, clock)
		if err := hp.Start(); err != nil {
			log.Fatalf("failed to start gRPC health service: %v", err)
		}
		defer hp.Stop()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: newHandler(m, est, &stats, *angleUnits),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("%s (gain %g) serving on %s", filter.Name(), filter.Gain(), *listen)

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

// newHandler mounts the orientation API and the serial debug routes.
func newHandler(m serialmux.SerialMuxInterface, est *live.Estimator, stats *serialmux.Stats, angleUnits string) http.Handler {
	mux := http.NewServeMux()

	// mount the admin debugging routes (accessible only locally or over Tailscale)
	m.AttachAdminRoutes(mux)

	apiMux := live.NewServer(m, est, stats, angleUnits).ServeMux()
	mux.Handle("/api/", apiMux)
	mux.Handle("/command", apiMux)
	return live.LoggingMiddleware(mux)
}

func openMux() (serialmux.SerialMuxInterface, error) {
	if *port == "mock" {
		lines, err := replayLines(512, *replaySeed)
		if err != nil {
			return nil, err
		}
		return serialmux.NewMockSerialMux(lines, *replayRate), nil
	}

	paths := splitPorts(*port)
	opts := serialmux.PortOptions{BaudRate: *baud, ReadTimeout: *readTimeout}
	if *legacyCfg != "" {
		sc, err := config.LoadSerialConfig(fsutil.OSFileSystem{}, *legacyCfg, *cfgSection)
		if err != nil {
			return nil, err
		}
		paths, opts = applySerialConfig(sc, paths, opts)
	}
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	return serialmux.NewRealSerialMux(paths, opts, fsutil.OSFileSystem{}.Exists)
}

func splitPorts(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applySerialConfig overrides paths and opts with the values sc sets.
func applySerialConfig(sc config.SerialConfig, paths []string, opts serialmux.PortOptions) ([]string, serialmux.PortOptions) {
	if len(sc.PortNames) > 0 {
		paths = sc.PortNames
	}
	if sc.BaudRate > 0 {
		opts.BaudRate = sc.BaudRate
	}
	if sc.Timeout > 0 {
		opts.ReadTimeout = time.Duration(sc.Timeout) * time.Millisecond
	}
	return paths, opts
}
