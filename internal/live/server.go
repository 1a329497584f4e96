package live

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/imufusion/internal/httputil"
	"github.com/banshee-data/imufusion/internal/serialmux"
	"github.com/banshee-data/imufusion/internal/units"
	"github.com/banshee-data/imufusion/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	m     serialmux.SerialMuxInterface
	est   *Estimator
	stats *serialmux.Stats
	units string
}

// NewServer serves the state of est. units is the default angle unit of
// responses and may be overridden per request with ?units=.
func NewServer(m serialmux.SerialMuxInterface, est *Estimator, stats *serialmux.Stats, units string) *Server {
	return &Server{
		m:     m,
		est:   est,
		stats: stats,
		units: units,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orientation", s.showOrientation)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/reset", s.resetHandler)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/command", s.sendCommandHandler)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}
	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) requestUnits(r *http.Request) (string, error) {
	u := httputil.QueryString(r, "units", s.units)
	return u, units.Validate(u)
}

func convertAngles(a [3]float64, target string) [3]float64 {
	if target == units.Deg {
		return a
	}
	for i := range a {
		a[i] = units.FromRadians(units.ToRadians(a[i], units.Deg), target)
	}
	return a
}

func (s *Server) showOrientation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	u, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	o := s.est.Snapshot()
	o.Euler = convertAngles(o.Euler, u)
	o.Smoothed = convertAngles(o.Smoothed, u)
	if o.DeviceErrorDeg != nil && u != units.Deg {
		v := units.FromRadians(units.ToRadians(*o.DeviceErrorDeg, units.Deg), u)
		o.DeviceErrorDeg = &v
	}

	httputil.WriteJSONOK(w, struct {
		Orientation
		Units string `json:"units"`
	}{o, u})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, map[string]int64{
		"lines":   s.stats.Lines(),
		"records": s.stats.Records(),
		"skipped": s.stats.Skipped(),
		"invalid": s.stats.Invalid(),
		"samples": s.est.Snapshot().Samples,
	})
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	s.est.RequestReset()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "reset requested"})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"filter":     s.est.filter.Name(),
		"gain":       s.est.filter.Gain(),
		"units":      s.units,
		"gyro_units": s.est.opts.GyroUnits,
		"dt":         s.est.opts.SamplePeriod,
		"version":    version.Version,
	})
}
