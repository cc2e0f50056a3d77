package handler

import (
	"context"

	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/replication"
)

// Cluster is the view of the local node the handlers need. Every request
// call blocks until the request resolves or the context is done.
type Cluster interface {
	Create(ctx context.Context, key, value string) (replication.Outcome, error)
	Read(ctx context.Context, key string) (replication.Outcome, error)
	Update(ctx context.Context, key, value string) (replication.Outcome, error)
	Delete(ctx context.Context, key string) (replication.Outcome, error)
	Members(ctx context.Context) ([]membership.Entry, error)
	Self() membership.PeerID
}
