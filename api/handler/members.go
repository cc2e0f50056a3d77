package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/maxpoletaev/ringkv/api/model"
)

type MembersHandler struct {
	cluster Cluster
}

func NewMembersHandler(cluster Cluster) *MembersHandler {
	return &MembersHandler{
		cluster: cluster,
	}
}

func (api *MembersHandler) Register(r chi.Router) {
	r.Get("/cluster/members", api.getMembers)
}

func (api *MembersHandler) getMembers(w http.ResponseWriter, r *http.Request) {
	entries, err := api.cluster.Members(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}

	members := make([]model.Member, len(entries))

	for i, e := range entries {
		members[i] = model.Member{
			Addr:        e.Peer.String(),
			Heartbeat:   e.Heartbeat,
			LastUpdated: e.LastUpdated,
		}
	}

	render.JSON(w, r, model.GetMembersResponse{
		Self:    api.cluster.Self().String(),
		Members: members,
	})
}
