package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"tuition/internal/core"
	applog "tuition/internal/log"
	"tuition/internal/middleware/ratelimit"
	"tuition/internal/middleware/security"
	"tuition/internal/middleware/trace"
	"tuition/internal/services"
)

// LedgerAPI is what the handlers need from the ledger service.
type LedgerAPI interface {
	Load(ctx context.Context, periodID string) (services.PeriodView, error)
	Statistics(ctx context.Context, periodID string) (core.Statistics, error)
	ApplyEdit(rec core.StudentRecord, e services.Edit) (core.StudentRecord, error)
	Save(ctx context.Context, original *core.StudentRecord, edited core.StudentRecord) (services.SaveResult, error)
	SaveStudent(ctx context.Context, edited core.StudentRecord) (services.SaveResult, error)
	Delete(ctx context.Context, id string) error
}

// Options tunes a Server.
type Options struct {
	Logger          *applog.Logger
	DefaultPeriodID string
	// WriteLimit caps mutating requests per client; zero uses the limiter default.
	WriteLimit ratelimit.Config
}

type Server struct {
	http.Server
	ledger        LedgerAPI
	defaultPeriod string
	limiter       *ratelimit.Limiter
}

func NewServer(addr string, ledger LedgerAPI, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	s := &Server{
		ledger:        ledger,
		defaultPeriod: opts.DefaultPeriodID,
		limiter:       ratelimit.NewLimiter(opts.WriteLimit),
	}

	limited := s.limiter.Middleware(clientIP, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /api/students", s.handleListStudents)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.Handle("POST /api/students/edit", http.HandlerFunc(s.handleEdit))
	mux.Handle("POST /api/students/save", limited(http.HandlerFunc(s.handleSave)))
	mux.Handle("DELETE /api/students/{id}", limited(http.HandlerFunc(s.handleDelete)))

	var h http.Handler = mux
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = trace.NewMiddleware(logger, clientIP).Handler(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// RunLimiterCleanup prunes idle clients of the write limiter until ctx is done.
func (s *Server) RunLimiterCleanup(ctx context.Context) {
	s.limiter.Run(ctx, 5*time.Minute)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientIP prefers the first X-Forwarded-For hop, then the remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
