package backend

import (
	"context"

	"github.com/ndunguloren96/ltronix-shop/internal/guest"
	"github.com/ndunguloren96/ltronix-shop/internal/session"
)

type GuestKeys interface {
	Current(ctx context.Context) (guest.Key, bool)
}

// ResolveCredentials picks what to send for the current session: the bearer
// token when authenticated, otherwise the guest key if one exists.
func ResolveCredentials(ctx context.Context, sessions session.Resolver, guests GuestKeys) Credentials {
	sess := sessions.Current(ctx)
	if sess.IsAuthenticated() {
		return Credentials{Token: sess.Token}
	}
	if guests != nil {
		if key, ok := guests.Current(ctx); ok {
			return Credentials{GuestKey: string(key)}
		}
	}
	return Credentials{}
}
