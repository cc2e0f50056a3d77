package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/maxpoletaev/ringkv/api/model"
	"github.com/maxpoletaev/ringkv/node"
	"github.com/maxpoletaev/ringkv/replication"
)

var (
	ErrKeyExists   = errors.New("key already exists or not enough replicas acknowledged")
	ErrKeyNotFound = errors.New("key not found or not enough replicas acknowledged")
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, replication.ErrEmptyKey), errors.Is(err, replication.ErrEmptyValue):
		return http.StatusBadRequest
	case errors.Is(err, ErrKeyExists):
		return http.StatusConflict
	case errors.Is(err, ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, replication.ErrNotEnoughReplicas), errors.Is(err, node.ErrLoopStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, errorStatus(err))
	render.JSON(w, r, model.ErrorResponse{Error: err.Error()})
}
