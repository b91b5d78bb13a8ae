package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mockexam/mockexam-server/internal/api/http"
	auth "github.com/mockexam/mockexam-server/internal/auth/middleware"
	"github.com/mockexam/mockexam-server/internal/config"
	"github.com/mockexam/mockexam-server/internal/db"
	"github.com/mockexam/mockexam-server/internal/exam"
	"github.com/mockexam/mockexam-server/internal/rbac"
	"github.com/mockexam/mockexam-server/internal/seed"
	syncx "github.com/mockexam/mockexam-server/internal/sync"
	"github.com/mockexam/mockexam-server/internal/webhook"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	if cfg.SeedPath != "" {
		fixture, err := seed.Load(cfg.SeedPath)
		if err != nil {
			log.Fatalf("seed load failed: %v", err)
		}
		if err := seed.Apply(ctx, dbh, fixture); err != nil {
			log.Fatalf("seed apply failed: %v", err)
		}
		log.Printf("applied seed fixture %s (%d templates)", cfg.SeedPath, len(fixture.Templates))
	}

	events := syncx.NewEventRepo(dbh)
	svc := exam.NewService(exam.NewSQLStore(dbh), exam.WithRecorder(events))

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Identity provider profile sync (signature-verified, unauthenticated)
	r.Post("/webhooks/identity", webhook.IdentityHandler(cfg.IdentityWebhookSecret, dbh, events))

	// Protected API (JWT → subject/role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.With(rbac.Require("template:view")).
			Get("/templates", api.ListTemplatesHandler(svc))

		pr.With(rbac.Require("attempt:create")).
			Post("/attempts", api.StartAttemptHandler(svc))
		pr.With(rbac.Require("attempt:save")).
			Put("/attempts/answers", api.SaveAnswerHandler(svc))
		pr.With(rbac.Require("attempt:save")).
			Put("/attempts/mark", api.ToggleMarkHandler(svc))
		pr.With(rbac.Require("attempt:finish")).
			Post("/attempts/{attemptID}/finish", api.FinishAttemptHandler(svc))

		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(svc))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(svc))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}/questions/{index}", api.GetQuestionHandler(svc))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}/summary", api.GetSummaryHandler(svc))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}/result", api.GetResultHandler(svc))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}/review", api.ListMarkedHandler(svc))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
