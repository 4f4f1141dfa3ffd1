package port

import "context"

// VerdictCache memoizes access check verdicts keyed by
// (user, capability, context). Implementations must make invalidation safe
// across processes; staleness after InvalidateUser/InvalidateAll is a
// correctness bug, not a tuning knob.
type VerdictCache interface {
	// Get returns the cached verdict and whether one was present, plus an
	// opaque handle pinned to the cache state at read time. The handle is
	// what Set must use, so an invalidation that lands while the caller is
	// resolving orphans the in-flight write instead of resurrecting a stale
	// verdict.
	Get(ctx context.Context, userID int64, capability string, contextID int64) (verdict bool, ok bool, handle string, err error)
	// Set stores a verdict under a handle obtained from Get.
	Set(ctx context.Context, handle string, verdict bool) error
	// InvalidateUser drops every cached verdict for one user. Called on
	// assign/unassign.
	InvalidateUser(ctx context.Context, userID int64) error
	// InvalidateAll drops every cached verdict. Called on grant changes,
	// since the affected user set is not cheaply enumerable.
	InvalidateAll(ctx context.Context) error
}
