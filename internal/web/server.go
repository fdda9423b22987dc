package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/hpungsan/qnadeck/internal/config"
	"github.com/hpungsan/qnadeck/internal/render"
	"github.com/hpungsan/qnadeck/internal/shell"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates and configures the HTTP server for the qnadeck web UI.
func NewServer(gw shell.Gateway, cfg *config.Config, version, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewHandler(gw, cfg, version),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewHandler builds the routed, wrapped handler behind NewServer.
func NewHandler(gw shell.Gateway, cfg *config.Config, version string) http.Handler {
	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		log.Fatalf("failed to create template sub-FS: %v", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-FS: %v", err)
	}

	h := &Handlers{
		gw:       gw,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, version),
		md:       render.New(render.DefaultStyle),
		now:      time.Now,
	}
	return newRouter(h, staticSub)
}

func newRouter(h *Handlers, staticSub fs.FS) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/qnas", http.StatusFound)
	}).Methods(http.MethodGet)
	r.HandleFunc("/qnas", h.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/qnas/{id:[0-9]+}", h.HandleDetail).Methods(http.MethodGet)
	r.HandleFunc("/qnas/{id:[0-9]+}", h.HandleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/qnas/{id:[0-9]+}/markdown", h.HandleMarkdown).Methods(http.MethodGet)
	r.HandleFunc("/qnas/{id:[0-9]+}/bookmark", h.HandleBookmark).Methods(http.MethodPost)
	r.HandleFunc("/qnas/{id:[0-9]+}/done", h.HandleDone).Methods(http.MethodPost)
	r.HandleFunc("/export/{format}", h.HandleExport).Methods(http.MethodGet)
	r.HandleFunc("/import/{format}", h.HandleImport).Methods(http.MethodPost)

	// Static files; the highlight stylesheet is generated from the chroma style.
	r.HandleFunc("/static/highlight.css", h.HandleStyles).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServerFS(staticSub))).Methods(http.MethodGet)

	var handler http.Handler = r
	if len(h.cfg.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: h.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Accept", "X-Requested-With"},
			MaxAge:         86400,
		}).Handler(handler)
	}

	return securityHeaders(handler)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("qnadeck UI running at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
