package notify

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"github.com/MDx-Vision/nicehr-realtime/src/types"
)

// Provider is one named domain counter query, e.g. open tickets assigned to
// a user. AdminOnly providers are computed only for admin sessions.
type Provider struct {
	Name      string
	AdminOnly bool
	Query     func(ctx context.Context, userID string, role types.Role) (int, error)
}

// Subscriber is a connection that opted into notification pushes.
type Subscriber interface {
	UserID() string
	Role() types.Role
	TrySend(ev types.Event) bool
}

// Directory exposes the subscribed connections of the registry.
type Directory interface {
	Subscribers() []Subscriber
	SubscribersOf(userIDs []string) []Subscriber
}

// Aggregator computes per-user notification-count snapshots from the
// registered providers and pushes them to subscribed connections, either on
// demand or when the surrounding system signals a change.
type Aggregator struct {
	providers []Provider
	dir       Directory
	logger    zerolog.Logger
}

// NewAggregator creates an aggregator over the given connection directory.
// Providers are registered during startup wiring, before any traffic.
func NewAggregator(dir Directory, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		dir:    dir,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Register adds a count provider. Not safe to call after traffic starts.
func (a *Aggregator) Register(p Provider) {
	a.providers = append(a.providers, p)
}

// Snapshot queries each provider relevant for the user's role and returns a
// map of named counters. A failing provider is logged and omitted; the
// snapshot itself never fails. A non-empty affectedTypes restricts the
// snapshot to the named counters.
func (a *Aggregator) Snapshot(ctx context.Context, userID string, role types.Role, affectedTypes []string) map[string]int {
	counts := make(map[string]int)
	for _, p := range a.providers {
		if p.AdminOnly && role != types.RoleAdmin {
			continue
		}
		if len(affectedTypes) > 0 && !slices.Contains(affectedTypes, p.Name) {
			continue
		}
		n, err := p.Query(ctx, userID, role)
		if err != nil {
			a.logger.Error().Err(err).
				Str("provider", p.Name).
				Str("user_id", userID).
				Msg("count provider failed, omitting counter")
			continue
		}
		counts[p.Name] = n
	}
	return counts
}

// PushToAll recomputes and delivers snapshots to every subscribed
// connection. Per-connection failures are independent.
func (a *Aggregator) PushToAll(ctx context.Context, affectedTypes []string) {
	a.deliver(ctx, a.dir.Subscribers(), affectedTypes)
}

// PushToUsers delivers snapshots to the subscribed connections of the given
// users only. This is the path the surrounding system uses to signal that
// something a user cares about changed.
func (a *Aggregator) PushToUsers(ctx context.Context, userIDs, affectedTypes []string) {
	a.deliver(ctx, a.dir.SubscribersOf(userIDs), affectedTypes)
}

// deliver computes one snapshot per user and fans it out to each of that
// user's subscribed connections.
func (a *Aggregator) deliver(ctx context.Context, subs []Subscriber, affectedTypes []string) {
	perUser := make(map[string]map[string]int)
	for _, sub := range subs {
		counts, ok := perUser[sub.UserID()]
		if !ok {
			counts = a.Snapshot(ctx, sub.UserID(), sub.Role(), affectedTypes)
			perUser[sub.UserID()] = counts
		}
		sub.TrySend(types.NotificationCounts(counts, affectedTypes))
	}
}
