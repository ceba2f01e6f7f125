package http

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/osmanmakhtoom/url-shortener/internal/models"
)

// URLService is the slice of the URL service the HTTP layer needs.
type URLService interface {
	Shorten(ctx context.Context, originalURL string) (*models.URL, error)
	Resolve(ctx context.Context, shortCode string) (*models.URL, error)
	Deactivate(ctx context.Context, shortCode string) error
	Restore(ctx context.Context, shortCode string) (*models.URL, error)
}

// VisitService records visits and reads visit statistics.
type VisitService interface {
	Record(ctx context.Context, shortCode string, ip *string)
	CountForURL(ctx context.Context, urlID int64) (int64, error)
}

func NewRouter(logger *httplog.Logger, urlSvc URLService, visitSvc VisitService) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/ping", handlePing)
	r.Get("/{shortCode}", handleRedirect(urlSvc, visitSvc))

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()

		r.Route("/shorten", func(r chi.Router) {
			r.Post("/", handleShortenURL(urlSvc, validate))

			r.Route("/{shortCode}", func(r chi.Router) {
				r.Get("/stats", handleGetURLStats(urlSvc, visitSvc))
				r.Delete("/", handleDeactivateURL(urlSvc))
				r.Post("/restore", handleRestoreURL(urlSvc))
			})
		})
	})

	return r
}

func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}
