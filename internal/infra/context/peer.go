package context

import (
	"context"
)

const contextKeyPeer = contextKey("peer")

// PeerFromContext extracts the remote address of the connection being served.
func PeerFromContext(ctx context.Context) (string, bool) {
	peer, ok := ctx.Value(contextKeyPeer).(string)

	return peer, ok
}

// WithPeer creates a new context carrying the remote address of a connection.
func WithPeer(ctx context.Context, peer string) context.Context {
	return context.WithValue(ctx, contextKeyPeer, peer)
}
