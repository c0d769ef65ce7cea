package usecase

import "context"

// IdentityResolver maps user ids to display emails. Implementations batch the
// lookup and degrade gracefully: an unresolvable id yields a sentinel value,
// never an error, so a directory outage cannot break listing assembly.
type IdentityResolver interface {
	ResolveEmails(ctx context.Context, ids []string) map[string]string
}
