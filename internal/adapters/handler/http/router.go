package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	// AllowedOrigins is the normalised CORS allowlist. Empty allows every origin.
	AllowedOrigins []string
	// RequestTimeout bounds the poll endpoints. The stream is never bounded.
	RequestTimeout time.Duration
}

func NewHandler(pollHandler *PollHandler, healthHandler *HealthHandler, streamHandler http.Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return originAllowed(opts.AllowedOrigins, origin)
		},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)
		r.Method(http.MethodGet, "/stream", streamHandler)

		r.Route("/polls", func(r chi.Router) {
			if opts.RequestTimeout > 0 {
				r.Use(middleware.Timeout(opts.RequestTimeout))
			}
			r.Post("/", pollHandler.CreatePoll)
			r.Get("/", pollHandler.ListPolls)
			r.Get("/{id}", pollHandler.GetPoll)
			r.Post("/{id}/vote", pollHandler.Vote)
			r.Post("/{id}/like", pollHandler.Like)
		})
	})

	return r
}

// originAllowed accepts any origin when the allowlist is empty, otherwise an
// allowlisted origin or a Vercel preview deployment.
func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	o := strings.TrimSuffix(strings.ToLower(origin), "/")
	for _, a := range allowed {
		if o == a {
			return true
		}
	}
	return strings.HasSuffix(o, ".vercel.app")
}
