// Package merge reconciles the locally held cart with the server-held cart
// whenever the active identity changes.
package merge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nikolayk812/cartsync/internal/cartstore"
	"github.com/nikolayk812/cartsync/internal/domain"
	"github.com/nikolayk812/cartsync/internal/port"
)

// LogoutPolicy decides what happens to the visible cart when identity
// transitions back to Guest.
type LogoutPolicy int

const (
	// ClearOnLogout empties the cart so the next user of a shared device
	// never sees the previous user's selections.
	ClearOnLogout LogoutPolicy = iota

	// PreserveLocal keeps the local cart across logout. Both behaviors have
	// shipped at different times; this stays a policy point until product
	// confirms one.
	PreserveLocal
)

// Resolver runs the identity-transition state machine:
//
//   - Guest -> Authenticated: fetch the server cart and merge additively,
//     then push the merged cart into the store and mirror it upstream.
//   - Authenticated -> Guest: apply the logout policy.
//   - Authenticated(A) -> Authenticated(B): logout-then-login.
//
// The server fetch is the only asynchronous step. While it is in flight the
// store keeps serving its pre-merge snapshot; a fetch that completes after a
// newer transition is discarded via the generation guard. A failed fetch
// defers the merge, keeping the guest cart, and the next identity signal for
// the same user retries it.
type Resolver struct {
	store  *cartstore.Store
	server port.CartRepository // nil when no server cart service is wired
	policy LogoutPolicy
	logger *slog.Logger

	gen atomic.Uint64
	wg  sync.WaitGroup

	mu       sync.Mutex
	current  domain.Identity
	deferred bool
}

func New(store *cartstore.Store, server port.CartRepository, initial domain.Identity, policy LogoutPolicy, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		store:   store,
		server:  server,
		policy:  policy,
		logger:  logger,
		current: initial,
	}
}

// Current returns the identity the resolver last settled on.
func (r *Resolver) Current() domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// MergeDeferred reports whether the last Guest->Authenticated merge is still
// pending because the server cart could not be obtained.
func (r *Resolver) MergeDeferred() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deferred
}

// Wait blocks until in-flight merges finish. Intended for shutdown and tests.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// OnIdentityChanged feeds the resolver a (possibly unchanged) identity
// observed on storage or set locally. Re-signaling the current authenticated
// identity retries a deferred merge.
func (r *Resolver) OnIdentityChanged(ctx context.Context, next domain.Identity) {
	r.mu.Lock()
	prev := r.current
	transition := prev.TransitionTo(next)
	retry := transition == domain.TransitionNone && r.deferred && !next.IsGuest()
	if transition == domain.TransitionNone && !retry {
		r.mu.Unlock()
		return
	}
	r.current = next
	r.deferred = false
	r.mu.Unlock()

	switch transition {
	case domain.TransitionLogout:
		if r.policy == ClearOnLogout {
			r.store.Clear()
		}
		r.logger.Info("identity transition", "transition", transition, "policy_clear", r.policy == ClearOnLogout)

	case domain.TransitionSwitch:
		// Account switch without an explicit logout: logout-then-login, so
		// user A's lines never bleed into user B's merged cart.
		r.store.Clear()
		r.beginMerge(ctx, next)

	case domain.TransitionLogin:
		r.beginMerge(ctx, next)

	default: // retry of a deferred merge
		r.beginMerge(ctx, next)
	}
}

func (r *Resolver) beginMerge(ctx context.Context, identity domain.Identity) {
	if r.server == nil {
		r.deferMerge(identity)
		r.logger.Info("no server cart service, merge deferred", "user_id", identity.UserID)
		return
	}

	gen := r.gen.Add(1)
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		serverCart, err := r.server.GetCart(ctx, identity.UserID)
		if err != nil {
			r.deferMerge(identity)
			r.logger.Warn("fetching server cart, merge deferred", "user_id", identity.UserID, "error", err)
			return
		}

		if !r.stillCurrent(gen, identity) {
			r.logger.Debug("discarding stale merge result", "user_id", identity.UserID)
			return
		}

		// Merge against the snapshot current now, not the one at transition
		// time, so lines added while the fetch was in flight survive.
		merged := domain.Merge(r.store.Snapshot(), serverCart)
		r.store.ReplaceAll(merged.Lines)

		if err := r.server.ReplaceCart(ctx, identity.UserID, merged.Lines); err != nil {
			r.logger.Warn("mirroring merged cart upstream", "user_id", identity.UserID, "error", err)
		}
	}()
}

func (r *Resolver) deferMerge(identity domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == identity {
		r.deferred = true
	}
}

func (r *Resolver) stillCurrent(gen uint64, identity domain.Identity) bool {
	if r.gen.Load() != gen {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current == identity
}
