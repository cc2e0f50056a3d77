package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/maxpoletaev/ringkv/api/model"
)

type KeyValueHandler struct {
	cluster Cluster
}

func NewKeyValueHandler(cluster Cluster) *KeyValueHandler {
	return &KeyValueHandler{cluster: cluster}
}

func (api *KeyValueHandler) Register(r chi.Router) {
	r.Get("/kv/{key}", api.getKey)
	r.Post("/kv/{key}", api.createKey)
	r.Put("/kv/{key}", api.updateKey)
	r.Delete("/kv/{key}", api.deleteKey)
}

func (api *KeyValueHandler) getKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	result, err := api.cluster.Read(r.Context(), key)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if !result.Success {
		render.Status(r, http.StatusNotFound)
	}

	render.JSON(w, r, model.GetKeyResponse{
		TxID:   result.TxID,
		Value:  result.Value,
		Exists: result.Success,
	})
}

func (api *KeyValueHandler) createKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var params model.PutKeyParams
	if err := render.DecodeJSON(r.Body, &params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := api.cluster.Create(r.Context(), key, params.Value)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if !result.Success {
		renderError(w, r, ErrKeyExists)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, model.PutKeyResponse{
		TxID:    result.TxID,
		Created: true,
	})
}

func (api *KeyValueHandler) updateKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var params model.PutKeyParams
	if err := render.DecodeJSON(r.Body, &params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := api.cluster.Update(r.Context(), key, params.Value)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if !result.Success {
		renderError(w, r, ErrKeyNotFound)
		return
	}

	render.JSON(w, r, model.PutKeyResponse{
		TxID: result.TxID,
	})
}

func (api *KeyValueHandler) deleteKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	result, err := api.cluster.Delete(r.Context(), key)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if !result.Success {
		renderError(w, r, ErrKeyNotFound)
		return
	}

	render.JSON(w, r, model.DeleteKeyResponse{
		TxID: result.TxID,
	})
}
