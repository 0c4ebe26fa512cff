package handlers

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/username/lotledger/backend/src/metrics"
	"golang.org/x/time/rate"
)

type RouterOptions struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	UploadsPerMin  int
}

// NewRouter builds the HTTP surface: statement routes, health and metrics.
func NewRouter(statementHandler *StatementHandler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger)
	r.Use(metrics.Middleware)
	r.Use(EnableCORS(opts.AllowedOrigins))
	if opts.RateLimitRPS > 0 && opts.RateLimitBurst > 0 {
		r.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(opts.RateLimitRPS), opts.RateLimitBurst)))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	var uploadLimit func(http.Handler) http.Handler
	if opts.UploadsPerMin > 0 {
		uploadLimit = httprate.Limit(opts.UploadsPerMin, time.Minute, httprate.WithKeyFuncs(clientIP))
	}
	statementHandler.MountRoutes(r, uploadLimit)
	return r
}

func clientIP(r *http.Request) (string, error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr, nil
	}
	return "ip:" + host, nil
}
