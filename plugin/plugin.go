// Package plugin defines the Plugin record driven by the container: a name
// plus an optional handler for each hook in the Rollup-compatible protocol.
// A handler is either a bare function or a HookSpec carrying order and
// sequential flags — Go's static typing models the JS "function or
// {handler, order, sequential}" union as an explicit struct instead of a
// runtime type check.
package plugin

import (
	"context"

	"loomdev/hook"
	"loomdev/hookctx"
)

// HookSpec wraps one hook's handler with its dispatch metadata. The zero
// value of Order/Sequential is the handler's default behavior, so a plugin
// author can build one with just a Handler field set (the "bare function"
// case in spec.md).
type HookSpec[F any] struct {
	Handler    F
	Order      hook.Order
	Sequential bool
}

// Hook function signatures, one per Rollup-compatible lifecycle point.
type (
	OptionsFunc     func(ctx context.Context, opts InputOptions) (*InputOptions, error)
	BuildStartFunc  func(ctx context.Context, pc hookctx.Context, opts InputOptions) error
	ResolveIDFunc   func(ctx context.Context, pc hookctx.Context, id string, importer string, opts hookctx.ResolveOptions) (*hookctx.ResolvedID, error)
	LoadFunc        func(ctx context.Context, pc hookctx.Context, id string, opts hookctx.LoadOptions) (*hookctx.LoadResult, error)
	TransformFunc   func(ctx context.Context, pc hookctx.TransformContext, code string, id string) (*hookctx.TransformHookResult, error)
	WatchChangeFunc func(ctx context.Context, pc hookctx.Context, id string, change hookctx.ChangeEvent) error
	BuildEndFunc    func(ctx context.Context, pc hookctx.Context, buildErr error) error
	CloseBundleFunc func(ctx context.Context, pc hookctx.Context) error
)

// InputOptions is the minimal options object folded through the options
// hook. Concrete build/transport options are an external collaborator's
// concern; this carries only what plugins are documented to see.
type InputOptions struct {
	Root  string
	Extra map[string]any
}

// Plugin is a named bundle of optional hook handlers.
type Plugin struct {
	Name string

	Options     *HookSpec[OptionsFunc]
	BuildStart  *HookSpec[BuildStartFunc]
	ResolveID   *HookSpec[ResolveIDFunc]
	Load        *HookSpec[LoadFunc]
	Transform   *HookSpec[TransformFunc]
	WatchChange *HookSpec[WatchChangeFunc]
	BuildEnd    *HookSpec[BuildEndFunc]
	CloseBundle *HookSpec[CloseBundleFunc]
}

// Func builds a bare-function HookSpec (the "just a function" case).
func Func[F any](handler F) *HookSpec[F] {
	return &HookSpec[F]{Handler: handler}
}

// WithOrder builds a HookSpec carrying explicit order/sequential metadata
// (the "{handler, order, sequential}" case).
func WithOrder[F any](handler F, order hook.Order, sequential bool) *HookSpec[F] {
	return &HookSpec[F]{Handler: handler, Order: order, Sequential: sequential}
}
