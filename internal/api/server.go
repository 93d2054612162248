// Package api exposes the directory over HTTP and MCP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aboutme/cards/internal/auth"
	"github.com/aboutme/cards/internal/directory"
)

type AppDeps struct {
	Directory      *directory.Service
	Verifier       auth.Verifier
	AllowedOrigins []string
	Logger         *slog.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(deps.Verifier))

		r.Get("/me/profile", handleGetMyProfile(deps))
		r.Put("/me/profile", handlePutMyProfile(deps))
		r.Post("/me/profile/import", handleImportProfile(deps))

		r.Get("/orgs", handleListOrgs(deps))
		r.Post("/orgs", handleCreateOrg(deps))
		r.Route("/orgs/{orgID}", func(r chi.Router) {
			r.Post("/members", handleAddMember(deps))
			r.Delete("/members/{userID}", handleRemoveMember(deps))
			r.Get("/profiles", handleBrowse(deps))
			r.Get("/profiles/{userID}", handleGetCard(deps))
			r.Post("/compare", handleCompare(deps))
			r.Get("/skills-graph", handleSkillGraph(deps))
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
