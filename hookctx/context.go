package hookctx

import "loomdev/sourcemap"

// Context is the capability surface handed to most hooks (options aside):
// resolving and loading other modules, inspecting the module graph, the
// emitted-file/watch-file bookkeeping, and warn/error reporting enriched
// with the active plugin's identity.
type Context interface {
	Parse(code string, opts map[string]any) (any, error)
	Resolve(id, importer string, opts ResolveOptions) (*ResolvedID, error)
	Load(id string, opts LoadOptions) (*ModuleInfo, error)

	GetModuleInfo(id string) (*ModuleInfo, bool)
	GetModuleIDs() []string

	AddWatchFile(id string)
	GetWatchFiles() []string

	EmitFile(name string, source []byte, kind string) (string, error)
	SetAssetSource(referenceID string, source []byte) error
	GetFileName(referenceID string) (string, error)

	Warn(err error, pos *Position)
	Error(err error, pos *Position) error
}

// ContainerReentry is the subset of the plugin container a PluginContext
// re-enters through this.resolve/this.load/this.transform. container.Container
// satisfies this structurally; pluginctx depends only on this interface so
// that container (which constructs pluginctx.Context values) never needs to
// be imported back by pluginctx, avoiding an import cycle.
type ContainerReentry interface {
	ResolveID(id, importer string, opts ResolveOptions) (*ResolvedID, error)
	Load(id string, opts LoadOptions) (*LoadResult, error)
	Transform(code, id string) (*TransformResult, error)
	AddWatchFile(id string)
	WatchFiles() []string
}

// TransformContext extends Context with the transform-hook-only surface:
// the file under transformation, its pre-transform code, and the combined
// source map accumulated by earlier plugins in the pipeline.
type TransformContext interface {
	Context

	Filename() string
	OriginalCode() string
	GetCombinedSourcemap() *sourcemap.Map
}
