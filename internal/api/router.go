package api

import (
	"net/http"
	"strings"
)

type RouterOptions struct {
	// AllowedOrigins is "*" or a comma separated list of origins.
	AllowedOrigins string
	// Media, when set, serves stored media under /media/.
	Media http.Handler
}

func Router(h *Handler, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()
	cors := CORS(opts.AllowedOrigins)

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.Handle("POST /webhook", cors(http.HandlerFunc(h.Webhook)))
	mux.Handle("POST /webhook/{event}", cors(http.HandlerFunc(h.Webhook)))
	mux.Handle("OPTIONS /webhook", cors(http.HandlerFunc(h.Preflight)))
	mux.Handle("OPTIONS /webhook/{event}", cors(http.HandlerFunc(h.Preflight)))

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)
	mux.HandleFunc("POST /v1/scheduler/run", h.SchedulerRun)

	if opts.Media != nil {
		mux.Handle("GET /media/", http.StripPrefix("/media", opts.Media))
	}

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("messaging-ingest"))
	})

	return mux
}

// CORS sets the cross-origin headers for allowed origins.
func CORS(allowed string) func(http.Handler) http.Handler {
	allowAll := allowed == "" || allowed == "*"
	origins := map[string]bool{}
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && origins[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			next.ServeHTTP(w, r)
		})
	}
}
