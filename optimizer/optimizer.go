// Package optimizer implements the dependency-optimizer selection policy:
// given an environment's options and an optional caller-supplied optimizer,
// decide which of three stub strategies governs pre-bundling discovery.
// Concrete dependency scanning/bundling is out of scope (spec.md §1); only
// the policy and a narrow interface for DevEnvironment to hold are defined.
package optimizer

// DepsOptimizer is the handle DevEnvironment holds. RegisterMissing records
// a dependency observed mid-transform that the optimizer did not already
// know about; NeedsReload reports whether a module transform that raced an
// optimizer invalidation should report ErrOutdatedOptimizedDep upstream.
type DepsOptimizer interface {
	Mode() Mode
	RegisterMissing(id string)
	NeedsReload(id string) bool
}

// Mode names the selected strategy, for logging/diagnostics.
type Mode string

const (
	ModeNone              Mode = "none"
	ModeFullAutoDiscovery Mode = "full-auto-discovery"
	ModeExplicitOnly      Mode = "explicit-only"
)

// Options is the slice of EnvironmentOptions the selection policy consults.
type Options struct {
	EnvironmentName  string
	NoDiscovery      bool
	Include          []string
	DiscoveryEnabled bool
}

// Select implements the table in spec §4.6:
//
//	caller provided one                                    -> use provided
//	NoDiscovery && len(Include) == 0                        -> none
//	name == "client" && DiscoveryEnabled                    -> full-auto-discovery
//	else                                                    -> explicit-only
func Select(provided DepsOptimizer, opts Options) DepsOptimizer {
	if provided != nil {
		return provided
	}
	if opts.NoDiscovery && len(opts.Include) == 0 {
		return newStub(ModeNone)
	}
	if opts.EnvironmentName == "client" && opts.DiscoveryEnabled {
		return newStub(ModeFullAutoDiscovery)
	}
	return newStub(ModeExplicitOnly)
}

// stub is a policy-only implementation: it tracks mode and a set of ids
// flagged missing/outdated, without performing real dependency scanning or
// pre-bundling (out of scope per spec.md §1).
type stub struct {
	mode     Mode
	missing  map[string]struct{}
	outdated map[string]struct{}
}

func newStub(mode Mode) *stub {
	return &stub{mode: mode, missing: map[string]struct{}{}, outdated: map[string]struct{}{}}
}

func (s *stub) Mode() Mode { return s.mode }

func (s *stub) RegisterMissing(id string) {
	if s.mode == ModeNone {
		return
	}
	s.missing[id] = struct{}{}
	if s.mode == ModeFullAutoDiscovery {
		s.outdated[id] = struct{}{}
	}
}

func (s *stub) NeedsReload(id string) bool {
	_, ok := s.outdated[id]
	return ok
}
