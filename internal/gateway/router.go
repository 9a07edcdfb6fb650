package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type FileProvider interface {
	GetFile(w http.ResponseWriter, r *http.Request)
	UploadFile(w http.ResponseWriter, r *http.Request)
	GetInfo(w http.ResponseWriter, r *http.Request)
	MintLink(w http.ResponseWriter, r *http.Request)
	Healthz(w http.ResponseWriter, r *http.Request)
}

type FileRouter struct {
	h FileProvider
}

func NewRouter(handler FileProvider) *FileRouter {
	return &FileRouter{h: handler}
}

func (r *FileRouter) Route(logger *slog.Logger) http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)
	mux.Use(enableCORS)
	mux.Use(loggingMiddleware(logger))
	mux.Use(metricsMiddleware)

	mux.Post("/upload", r.h.UploadFile)
	mux.Get("/download", r.h.GetFile)
	mux.Get("/files", r.h.GetInfo)
	mux.Post("/files/{id}/link", r.h.MintLink)

	mux.Get("/healthz", r.h.Healthz)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
