// Package hookctx defines the shared vocabulary between the plugin
// container, plugin context implementations, and the module graph: the
// interfaces and data transfer objects every hook signature is built from.
// It exists to break the import cycle between "the container drives
// plugins" and "plugins get a context that re-enters the container".
package hookctx

import "loomdev/sourcemap"

// Position is a line/column pair: the line is 1-indexed and the column
// 0-indexed, the same convention Loc reports.
type Position struct {
	Line   int
	Column int
}

// Loc is an enriched source location: a file plus an optional position.
type Loc struct {
	File   string
	Line   int
	Column int
}

// ResolveOptions carries the optional fields passed to resolveId.
type ResolveOptions struct {
	Attributes map[string]string
	Custom     map[string]any
	IsEntry    bool
	SSR        bool
	Scan       bool
	// Skip is the set of plugin names to bypass during this resolution,
	// used for recursion guards (this.resolve / skipSelf).
	Skip map[string]struct{}
}

// ResolvedID is the full Rollup-shaped resolution record.
type ResolvedID struct {
	ID                string
	External          bool
	ModuleSideEffects *bool
	Meta              map[string]any
}

// LoadOptions carries the optional fields passed to load.
type LoadOptions struct {
	SSR bool
}

// LoadResult is what a load hook (or this.load) returns.
type LoadResult struct {
	Code string
	Map  *sourcemap.Map
	Meta map[string]any
}

// TransformResult is what transform (and PluginContainer.Transform) return.
// Map is always a concrete map — see sourcemap.Chain.GetCombined.
type TransformResult struct {
	Code string
	Map  *sourcemap.Map
}

// TransformHookResult is what a single plugin's transform hook returns.
// MapSet distinguishes "no map field returned" (false) from "map explicitly
// set, possibly to nil" (true), since those mean different things to the
// source-map chain (spec §4.3/§4.5.5).
type TransformHookResult struct {
	Code    string
	CodeSet bool
	Map     *sourcemap.Map
	MapSet  bool
	Meta    map[string]any
}

// ChangeEvent describes a file-watcher change routed through watchChange.
type ChangeEvent struct {
	Kind string // "create" | "update" | "delete"
}

// WarnMessage is a structured warning recorded by the container/environment.
type WarnMessage struct {
	Plugin  string
	Message string
	Loc     *Loc
}

// ModuleInfo is the guarded, read-only view of a module node exposed to
// plugins via getModuleInfo/this.load. Only the fields below are supported;
// access to any other field is rejected at compile time.
type ModuleInfo struct {
	ID               string
	URL              string
	File             string
	Code             *string
	Meta             map[string]any
	IsEntry          bool
	IsExternal       bool
	IsSelfAccepting  bool
	ImporterIDs      []string
	ImportedIDs      []string
	DynamicImporters []string
}

// ModuleNode is the mutable module-graph node the container reads/writes.
type ModuleNode struct {
	ID                         string
	URL                        string
	File                       string
	IsSelfAccepting            bool
	LastHMRTimestamp           int64
	LastHMRInvalidationReceived bool
	Importers                  []*ModuleNode
	Info                       *ModuleInfo
	Meta                       map[string]any
}

// ModuleGraph is the module-graph handle the container and plugin context
// consume. Concrete implementations (e.g. internal/graphstore) own storage;
// this package only describes the operations used here.
type ModuleGraph interface {
	EnsureEntryFromURL(url string) (*ModuleNode, error)
	GetModuleByID(id string) *ModuleNode
	IDs() []string
}

// Watcher is the external file-watcher collaborator, referenced only by
// interface per spec §1 (out of scope as a concrete implementation here).
type Watcher interface {
	Add(path string) error
}
