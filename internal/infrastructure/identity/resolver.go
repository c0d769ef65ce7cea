package identity

import (
	"context"
	"sync"

	"firebase.google.com/go/v4/auth"

	"lostpaws/pkg/logger"
)

// UnknownEmail is rendered when a lookup fails; listings degrade instead of
// failing wholesale.
const UnknownEmail = "unknown"

// userLookup is the slice of auth.Client the resolver needs.
type userLookup interface {
	GetUsers(ctx context.Context, identifiers []auth.UserIdentifier) (*auth.GetUsersResult, error)
}

// Resolver maps user ids to display emails through Firebase Auth, batching
// lookups and caching results for the life of the process.
type Resolver struct {
	client userLookup

	mu    sync.RWMutex
	cache map[string]string
}

func NewResolver(client *auth.Client) *Resolver {
	return &Resolver{
		client: client,
		cache:  make(map[string]string),
	}
}

// ResolveEmails returns an email per requested id. Ids that cannot be
// resolved map to UnknownEmail; the method itself never fails.
func (r *Resolver) ResolveEmails(ctx context.Context, ids []string) map[string]string {
	result := make(map[string]string, len(ids))

	var missing []auth.UserIdentifier
	r.mu.RLock()
	for _, id := range ids {
		if email, ok := r.cache[id]; ok {
			result[id] = email
		} else if id != "" {
			missing = append(missing, auth.UIDIdentifier{UID: id})
		}
	}
	r.mu.RUnlock()

	if len(missing) > 0 {
		lookup, err := r.client.GetUsers(ctx, missing)
		if err != nil {
			logger.Warn("identity: batch lookup failed: %v", err)
		} else {
			r.mu.Lock()
			for _, user := range lookup.Users {
				// Accounts without an email fall through to the sentinel.
				if user.Email == "" {
					continue
				}
				result[user.UID] = user.Email
				r.cache[user.UID] = user.Email
			}
			r.mu.Unlock()
		}
	}

	for _, id := range ids {
		if _, ok := result[id]; !ok {
			result[id] = UnknownEmail
		}
	}
	return result
}

// ResolveEmail is the single-id convenience used outside listing assembly.
func (r *Resolver) ResolveEmail(ctx context.Context, id string) string {
	return r.ResolveEmails(ctx, []string{id})[id]
}
