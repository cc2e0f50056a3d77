package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/maxpoletaev/ringkv/api/handler"
)

func CreateRouter(cluster handler.Cluster) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	handler.NewKeyValueHandler(cluster).Register(r)
	handler.NewMembersHandler(cluster).Register(r)

	return r
}
