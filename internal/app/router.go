package app

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"certprep/internal/app/observability"
	"certprep/internal/auth"
	"certprep/internal/exam"
	"certprep/internal/question"
	"certprep/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
)

// NewRouter wires every service onto db. cache may be nil, in which case
// question reads go straight to the database.
func NewRouter(cfg Config, db *sql.DB, cache *redis.Client) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(RateLimitMiddleware(NewIPRateLimiter(cfg.APIRateLimitPerMin, time.Minute)))

	authSvc, err := auth.NewService(auth.ServiceConfig{
		JWTSecret: cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		TokenTTL:  cfg.TokenTTL,
		DevLogin: auth.DevLoginConfig{
			Enabled:      cfg.DevLoginEnabled,
			Username:     cfg.DevLoginUser,
			PasswordHash: cfg.DevLoginPassHash,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	authHandler := auth.NewHandler(authSvc)

	questionSvc := question.NewService(db)
	publicReader := question.NewCachedPublicReader(questionSvc, cache, cfg.QuestionCacheTTL)
	questionHandler := question.NewHandler(publicReader, nil)
	if cfg.QuestionImportEnabled {
		questionHandler = question.NewHandler(publicReader, questionSvc)
	}

	attempts := exam.NewSQLStore(db)
	examSvc := exam.NewService(attempts, publicReader, questionSvc, exam.ServiceConfig{
		Blueprint:     cfg.Blueprint,
		SubmitTimeout: cfg.SubmitTimeout,
	})
	examHandler := exam.NewHandler(examSvc)

	reportHandler := report.NewHandler(report.NewService(attempts, cfg.Blueprint))

	collector := observability.NewCollector(db)

	r.Get("/healthz", collector.HealthHandler)
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(collector.Middleware)
			public.Get("/blueprint", examHandler.GetBlueprint)
			public.Get("/questions", questionHandler.ListPublic)
			public.Post("/auth/token", authHandler.LoginPassword)
		})

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Use(collector.Middleware)
			secure.Get("/auth/me", authHandler.Me)

			secure.Post("/questions/import", questionHandler.Import)

			secure.Post("/attempts", examHandler.Start)
			secure.Get("/attempts", examHandler.ListAttempts)
			secure.Get("/attempts/{id}", examHandler.GetAttempt)
			secure.Get("/attempts/{id}/review", examHandler.Review)
			secure.Post("/attempts/{id}/submit", examHandler.Submit)
			secure.Post("/submit-test", examHandler.SubmitTest)
			secure.Post("/check-answer", examHandler.CheckAnswer)

			secure.Get("/progress", reportHandler.Progress)
			secure.Get("/progress/export.xlsx", reportHandler.ExportExcel)
		})
	})

	return r, nil
}
