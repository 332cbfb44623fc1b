package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Simplici0/cotizaciones/internal/cms"
	"github.com/Simplici0/cotizaciones/internal/config"
	"github.com/Simplici0/cotizaciones/internal/db"
	"github.com/Simplici0/cotizaciones/internal/migrations"
	"github.com/Simplici0/cotizaciones/internal/quotation"
	"github.com/Simplici0/cotizaciones/internal/realtime"
	"github.com/Simplici0/cotizaciones/internal/seed"
	"github.com/Simplici0/cotizaciones/internal/store/sqlite"
	"github.com/Simplici0/cotizaciones/internal/users"
)

type server struct {
	auth   *authService
	users  *users.Store
	quotes *quotation.Service
	hub    *realtime.Hub
}

func main() {
	cfg := config.Load()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if err := migrations.Up(context.Background(), database); err != nil {
		log.Fatalf("failed to run database migrations: %v", err)
	}

	stats, err := seed.Run(database, seed.Config{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		Demo:          cfg.IsDev() && !cfg.UsesCMS(),
	})
	if err != nil {
		log.Fatalf("failed to seed database: %v", err)
	}
	log.Printf("seed: %d inserts, %d updates", stats.Inserts, stats.Updates)

	var store quotation.Store = sqlite.New(database)
	if cfg.UsesCMS() {
		store = cms.New(cfg.CMSURL, cfg.CMSToken)
		log.Printf("quotations stored in CMS at %s", cfg.CMSURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	go hub.Run(ctx)

	userStore := users.NewStore(database)
	srv := &server{
		auth:  newAuthService(userStore, cfg.SessionSecret, !cfg.IsDev()),
		users: userStore,
		quotes: quotation.NewService(store,
			quotation.WithNotifier(hub),
			quotation.WithPageSize(cfg.DefaultPageSize),
		),
		hub: hub,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", httpServer.Addr, err)
	}

	log.Printf("listening on %s", httpServer.Addr)
	if err := serve(ctx, httpServer, ln, shutdownTimeout); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

const shutdownTimeout = 10 * time.Second

// serve runs srv on ln until ctx is done, then shuts it down and waits for
// in-flight requests to finish, or for timeout to pass, before returning.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration) error {
	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.authMiddleware)

	r.Get("/healthz", handleHealth)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Get("/ws", s.hub.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/me", s.handleMe)

		r.Route("/quotations", func(r chi.Router) {
			r.Get("/", s.handleListQuotations)
			r.Post("/", s.handleCreateQuotation)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetQuotation)
				r.Put("/", s.handleUpdateQuotation)
				r.Delete("/", s.handleDeleteQuotation)
				r.Put("/status", s.handleUpdateStatus)
				r.Get("/detail", s.handleQuotationDetail)
				r.Get("/text", s.handleQuotationText)
				r.Get("/export", s.handleQuotationExport)
				r.Get("/comments", s.handleListComments)
				r.Post("/comments", s.handleCreateComment)
			})
		})

		r.Post("/pricing/derive", handleDerive)
		r.Post("/pricing/aggregate", handleAggregate)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleCreateUser)
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
