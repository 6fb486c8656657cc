// Package pluginctx implements the "this" object handed to every hook
// invocation: the active plugin/id/code identity, a resolve-skip set, an
// added-imports set, and re-entry into the owning container's resolveId/
// load/transform. A fresh Context is built per hook invocation so that
// concurrent pipelines never alias active-plugin state.
package pluginctx

import (
	"fmt"

	"loomdev/hookctx"
	"loomdev/logx"
	"loomdev/perror"
	"loomdev/sourcemap"
)

// Context is the concrete hookctx.Context implementation.
type Context struct {
	container hookctx.ContainerReentry
	graph     hookctx.ModuleGraph
	watcher   hookctx.Watcher
	log       logx.Logger

	activePlugin string
	activeID     string
	activeCode   string
	hasCode      bool

	skip         map[string]struct{}
	addedImports map[string]struct{}

	warnings *[]hookctx.WarnMessage
}

// New builds a Context for one hook invocation against plugin.
func New(container hookctx.ContainerReentry, graph hookctx.ModuleGraph, watcher hookctx.Watcher, log logx.Logger, activePlugin string, warnings *[]hookctx.WarnMessage) *Context {
	return &Context{
		container:    container,
		graph:        graph,
		watcher:      watcher,
		log:          logx.OrNop(log),
		activePlugin: activePlugin,
		skip:         map[string]struct{}{},
		addedImports: map[string]struct{}{},
		warnings:     warnings,
	}
}

// WithActiveID/WithActiveCode/WithSkip return copies carrying extra
// per-invocation state, so the constructing container does not need to
// expose Context's private fields.
func (c *Context) WithActiveID(id string) *Context {
	cp := *c
	cp.activeID = id
	return &cp
}

func (c *Context) WithActiveCode(code string) *Context {
	cp := *c
	cp.activeCode = code
	cp.hasCode = true
	return &cp
}

func (c *Context) WithSkip(skip map[string]struct{}) *Context {
	cp := *c
	cp.skip = skip
	return &cp
}

// --- perror.ActiveContext ---

func (c *Context) ActivePluginName() string   { return c.activePlugin }
func (c *Context) ActiveID() string           { return c.activeID }
func (c *Context) ActiveCode() (string, bool) { return c.activeCode, c.hasCode }

// --- hookctx.Context ---

func (c *Context) Parse(code string, opts map[string]any) (any, error) {
	// No AST parser is wired (out of scope per spec.md §1); callers that
	// need a real AST must supply their own parser plugin.
	return nil, fmt.Errorf("parse: %w", perror.ErrUnsupportedContextMethod)
}

func (c *Context) Resolve(id, importer string, opts hookctx.ResolveOptions) (*hookctx.ResolvedID, error) {
	skip := mergeSkip(c.skip, c.activePlugin, opts.Skip)
	opts.Skip = skip
	return c.container.ResolveID(id, importer, opts)
}

// mergeSkip implements the default skipSelf semantics: unless the caller's
// opts explicitly cleared the skip set (opts.Skip non-nil but without the
// active plugin, meaning skipSelf:false was requested upstream), the active
// plugin plus any accumulated skips are carried forward.
func mergeSkip(accumulated map[string]struct{}, activePlugin string, explicit map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for k := range explicit {
		out[k] = struct{}{}
	}
	if explicit != nil && activePlugin != "" {
		if _, self := explicit[activePlugin]; !self {
			return out
		}
	}
	for k := range accumulated {
		out[k] = struct{}{}
	}
	if activePlugin != "" {
		out[activePlugin] = struct{}{}
	}
	return out
}

func (c *Context) Load(id string, opts hookctx.LoadOptions) (*hookctx.ModuleInfo, error) {
	if c.graph == nil {
		return nil, fmt.Errorf("load %q: %w", id, perror.ErrModuleInfoMissing)
	}
	node, err := c.graph.EnsureEntryFromURL(id)
	if err != nil {
		return nil, err
	}

	res, err := c.container.Load(id, opts)
	if err != nil {
		return nil, err
	}
	if res != nil {
		if node.Info == nil {
			node.Info = &hookctx.ModuleInfo{ID: id, URL: id}
		}
		code := res.Code
		node.Info.Code = &code
		if res.Meta != nil {
			if node.Info.Meta == nil {
				node.Info.Meta = map[string]any{}
			}
			for k, v := range res.Meta {
				node.Info.Meta[k] = v
			}
		}
		if _, err := c.container.Transform(res.Code, id); err != nil {
			return nil, err
		}
	}
	for imp := range c.addedImports {
		node.Info.ImportedIDs = appendUnique(node.Info.ImportedIDs, imp)
	}
	return node.Info, nil
}

func appendUnique(ss []string, v string) []string {
	for _, s := range ss {
		if s == v {
			return ss
		}
	}
	return append(ss, v)
}

func (c *Context) GetModuleInfo(id string) (*hookctx.ModuleInfo, bool) {
	if c.graph == nil {
		return nil, false
	}
	node := c.graph.GetModuleByID(id)
	if node == nil || node.Info == nil {
		return nil, false
	}
	return node.Info, true
}

func (c *Context) GetModuleIDs() []string {
	if c.graph == nil {
		return nil
	}
	return c.graph.IDs()
}

func (c *Context) AddWatchFile(id string) {
	c.addedImports[id] = struct{}{}
	c.container.AddWatchFile(id)
	if c.watcher != nil {
		_ = c.watcher.Add(id)
	}
}

func (c *Context) GetWatchFiles() []string {
	return c.container.WatchFiles()
}

// AddedImports returns the ids this context accumulated via addWatchFile,
// used to seed a module node's imported-ids list after load/transform.
func (c *Context) AddedImports() []string {
	out := make([]string, 0, len(c.addedImports))
	for id := range c.addedImports {
		out = append(out, id)
	}
	return out
}

func (c *Context) EmitFile(name string, source []byte, kind string) (string, error) {
	c.warn(fmt.Errorf("emitFile is not supported by this plugin container"), nil)
	return "", nil
}

func (c *Context) SetAssetSource(referenceID string, source []byte) error {
	c.warn(fmt.Errorf("setAssetSource is not supported by this plugin container"), nil)
	return nil
}

func (c *Context) GetFileName(referenceID string) (string, error) {
	c.warn(fmt.Errorf("getFileName is not supported by this plugin container"), nil)
	return "", nil
}

func (c *Context) Warn(err error, pos *hookctx.Position) {
	c.warn(err, pos)
}

func (c *Context) warn(err error, pos *hookctx.Position) {
	pe := perror.Format(err, posFrom(pos), c)
	c.log.Warnf("[plugin %s] %s", c.activePlugin, pe.Error())
	if c.warnings != nil {
		loc := (*hookctx.Loc)(nil)
		if pe.Loc != nil {
			loc = pe.Loc
		}
		*c.warnings = append(*c.warnings, hookctx.WarnMessage{Plugin: c.activePlugin, Message: pe.Error(), Loc: loc})
	}
}

func (c *Context) Error(err error, pos *hookctx.Position) error {
	return perror.Format(err, posFrom(pos), c)
}

func posFrom(pos *hookctx.Position) *perror.Pos {
	if pos == nil {
		return nil
	}
	return &perror.Pos{HasLineCol: true, Line: pos.Line, Column: pos.Column}
}

// TransformContext extends Context with the transform-only surface.
type TransformContext struct {
	*Context
	filename     string
	originalCode string
	chain        *sourcemap.Chain
}

// NewTransform builds a TransformContext for one transform-hook invocation.
func NewTransform(base *Context, filename, originalCode string, chain *sourcemap.Chain) *TransformContext {
	return &TransformContext{Context: base, filename: filename, originalCode: originalCode, chain: chain}
}

func (t *TransformContext) Filename() string     { return t.filename }
func (t *TransformContext) OriginalCode() string { return t.originalCode }

func (t *TransformContext) GetCombinedSourcemap() *sourcemap.Map {
	return t.chain.GetCombined(t.filename, t.originalCode)
}

// --- perror.TransformActiveContext ---

func (t *TransformContext) CombinedSourcemap() *sourcemap.Map { return t.GetCombinedSourcemap() }
func (t *TransformContext) OriginalFilename() string          { return t.filename }
