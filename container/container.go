// Package container implements the plugin container: the hook driver that
// folds options, runs buildStart with parallel-plus-sequential-barrier
// scheduling, drives resolveId/load as first-non-null searches, accumulates
// transform results through a source-map chain, broadcasts watchChange, and
// implements a quiescent close that drains outstanding hook work before
// running buildEnd then closeBundle.
package container

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"loomdev/hook"
	"loomdev/hookctx"
	"loomdev/logx"
	"loomdev/perror"
	"loomdev/plugin"
	"loomdev/pluginctx"
	"loomdev/sourcemap"
)

// Container drives a fixed, sorted set of plugins through the hook protocol
// for one environment.
type Container struct {
	root string
	log  logx.Logger

	graph   hookctx.ModuleGraph
	watcher hookctx.Watcher

	plugins []*plugin.Plugin

	mu          sync.Mutex
	closed      bool
	recoverable bool
	watchFiles  map[string]struct{}
	warnings    []hookctx.WarnMessage

	pending sync.WaitGroup
}

// New builds a Container over plugins (already expected to be in author
// order; each hook dispatch re-sorts by that hook's own Order field).
func New(root string, plugins []*plugin.Plugin, graph hookctx.ModuleGraph, watcher hookctx.Watcher, log logx.Logger, recoverable bool) *Container {
	return &Container{
		root:        root,
		log:         logx.OrNop(log),
		graph:       graph,
		watcher:     watcher,
		plugins:     plugins,
		recoverable: recoverable,
		watchFiles:  map[string]struct{}{},
	}
}

func (c *Container) checkClosed() error {
	c.mu.Lock()
	closed := c.closed
	recoverable := c.recoverable
	c.mu.Unlock()
	if closed && !recoverable {
		return perror.ErrClosedServer
	}
	return nil
}

// --- hookctx.ContainerReentry ---

func (c *Container) AddWatchFile(id string) {
	c.mu.Lock()
	c.watchFiles[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Container) WatchFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.watchFiles))
	for f := range c.watchFiles {
		out = append(out, f)
	}
	return out
}

func (c *Container) newContext(activePlugin string) *pluginctx.Context {
	return pluginctx.New(c, c.graph, c.watcher, c.log, activePlugin, &c.warnings)
}

// RecentWarnings returns a copy of the in-memory list of plugin warnings
// recorded so far (spec §4 supplemented data: WarnMessage). The list is not
// bounded.
func (c *Container) RecentWarnings() []hookctx.WarnMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]hookctx.WarnMessage, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// --- 4.5.1 options ---

type optionsEntry struct {
	name string
	spec *plugin.HookSpec[plugin.OptionsFunc]
}

// Options folds the input options through every options hook in sorted
// order, sequentially. A falsy (nil) return keeps the previous options.
func (c *Container) Options(initial plugin.InputOptions) (plugin.InputOptions, error) {
	var entries []optionsEntry
	for _, p := range c.plugins {
		if p.Options != nil {
			entries = append(entries, optionsEntry{p.Name, p.Options})
		}
	}
	entries = hook.Sort(entries, func(e optionsEntry) hook.Order { return e.spec.Order })

	opts := initial
	for _, e := range entries {
		if err := c.checkClosed(); err != nil {
			return opts, err
		}
		c.pending.Add(1)
		res, err := e.spec.Handler(context.Background(), opts)
		c.pending.Done()
		if err != nil {
			return opts, perror.Format(err, nil, c.newContext(e.name))
		}
		if res != nil {
			opts = *res
		}
	}
	return opts, nil
}

// --- 4.5.2 buildStart ---

type buildStartEntry struct {
	name string
	spec *plugin.HookSpec[plugin.BuildStartFunc]
}

// BuildStart runs buildStart in parallel across all plugins that provide it.
// A Sequential handler is a barrier: the driver awaits all previously
// scheduled parallel work, runs it alone, then resumes scheduling. This
// mirrors the teacher's dag.Executor.RunParallel coordinator/worker-pool
// idiom, collapsed from depth-staged task dispatch to barrier-staged hooks.
func (c *Container) BuildStart(opts plugin.InputOptions) error {
	var entries []buildStartEntry
	for _, p := range c.plugins {
		if p.BuildStart != nil {
			entries = append(entries, buildStartEntry{p.Name, p.BuildStart})
		}
	}
	entries = hook.Sort(entries, func(e buildStartEntry) hook.Order { return e.spec.Order })

	var group []buildStartEntry
	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		err := runParallel(c, group, func(e buildStartEntry) error {
			return e.spec.Handler(context.Background(), c.newContext(e.name), opts)
		})
		group = nil
		return err
	}

	for _, e := range entries {
		if err := c.checkClosed(); err != nil {
			return err
		}
		if e.spec.Sequential {
			if err := flush(); err != nil {
				return err
			}
			c.pending.Add(1)
			err := e.spec.Handler(context.Background(), c.newContext(e.name), opts)
			c.pending.Done()
			if err != nil {
				return perror.Format(err, nil, c.newContext(e.name))
			}
			continue
		}
		group = append(group, e)
	}
	return flush()
}

// runParallel runs fn over entries concurrently, tracking each invocation in
// the container's hook-promise set, and returns the first error encountered
// (or nil). It is a package-level generic function, not a method, because Go
// does not allow a method to carry its own type parameters.
func runParallel[T any](c *Container, entries []T, fn func(T) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(entries))
	for i, e := range entries {
		c.pending.Add(1)
		wg.Add(1)
		go func(i int, e T) {
			defer wg.Done()
			defer c.pending.Done()
			errs[i] = fn(e)
		}(i, e)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// --- 4.5.3 resolveId ---

type resolveEntry struct {
	name string
	spec *plugin.HookSpec[plugin.ResolveIDFunc]
}

func normalizeID(root, id string) string {
	if isExternalURL(id) {
		return id
	}
	if strings.HasPrefix(id, "/") || strings.HasPrefix(id, "./") || strings.HasPrefix(id, "../") {
		return path.Clean(path.Join(root, strings.TrimPrefix(id, "/")))
	}
	return path.Clean(id)
}

func isExternalURL(id string) bool {
	if i := strings.Index(id, "://"); i > 0 {
		scheme := id[:i]
		if !strings.ContainsAny(scheme, "/\\.") {
			return true
		}
	}
	return strings.HasPrefix(id, "data:") || strings.HasPrefix(id, "virtual:")
}

// ResolveID iterates plugins in sorted order, skipping any in opts.Skip, and
// returns the first non-null resolution.
func (c *Container) ResolveID(rawID, importer string, opts hookctx.ResolveOptions) (*hookctx.ResolvedID, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if importer == "" {
		importer = path.Join(c.root, "index.html")
	}

	var entries []resolveEntry
	for _, p := range c.plugins {
		if p.ResolveID == nil {
			continue
		}
		if _, skip := opts.Skip[p.Name]; skip {
			continue
		}
		entries = append(entries, resolveEntry{p.Name, p.ResolveID})
	}
	entries = hook.Sort(entries, func(e resolveEntry) hook.Order { return e.spec.Order })

	for _, e := range entries {
		ctx := c.newContext(e.name).WithSkip(opts.Skip)
		c.pending.Add(1)
		res, err := e.spec.Handler(context.Background(), ctx, rawID, importer, opts)
		c.pending.Done()
		if err != nil {
			return nil, perror.Format(err, nil, ctx)
		}
		if res == nil {
			continue
		}
		out := *res
		out.ID = normalizeID(c.root, out.ID)
		return &out, nil
	}
	return nil, nil
}

// --- 4.5.4 load ---

type loadEntry struct {
	name string
	spec *plugin.HookSpec[plugin.LoadFunc]
}

// Load iterates plugins, first non-null wins. Added imports accumulated on
// the context are recorded onto the module node even when no plugin handled
// the load, so a following transform can inherit them.
func (c *Container) Load(id string, opts hookctx.LoadOptions) (*hookctx.LoadResult, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	var entries []loadEntry
	for _, p := range c.plugins {
		if p.Load != nil {
			entries = append(entries, loadEntry{p.Name, p.Load})
		}
	}
	entries = hook.Sort(entries, func(e loadEntry) hook.Order { return e.spec.Order })

	var ctxs []*pluginctx.Context
	for _, e := range entries {
		ctx := c.newContext(e.name)
		ctxs = append(ctxs, ctx)
		c.pending.Add(1)
		res, err := e.spec.Handler(context.Background(), ctx, id, opts)
		c.pending.Done()
		if err != nil {
			return nil, perror.Format(err, nil, ctx)
		}
		if res == nil {
			continue
		}
		for _, pc := range ctxs {
			c.recordLoadAddedImports(id, pc)
		}
		return res, nil
	}
	for _, pc := range ctxs {
		c.recordLoadAddedImports(id, pc)
	}
	return nil, nil
}

func (c *Container) recordLoadAddedImports(id string, ctx *pluginctx.Context) {
	if c.graph == nil {
		return
	}
	node := c.graph.GetModuleByID(id)
	if node == nil || node.Info == nil {
		return
	}
	for _, imp := range ctx.AddedImports() {
		node.Info.ImportedIDs = appendUniqueID(node.Info.ImportedIDs, imp)
	}
}

func appendUniqueID(ss []string, v string) []string {
	for _, s := range ss {
		if s == v {
			return ss
		}
	}
	return append(ss, v)
}

// --- 4.5.5 transform ---

type transformEntry struct {
	name string
	spec *plugin.HookSpec[plugin.TransformFunc]
}

// Transform runs the accumulating transform pipeline: each plugin may
// rewrite code and/or contribute a source map, chained via sourcemap.Chain.
func (c *Container) Transform(code, id string) (*hookctx.TransformResult, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	c.log.Debugf("transform start id=%s invocation=%s", id, invocationID())

	var entries []transformEntry
	for _, p := range c.plugins {
		if p.Transform != nil {
			entries = append(entries, transformEntry{p.Name, p.Transform})
		}
	}
	entries = hook.Sort(entries, func(e transformEntry) hook.Order { return e.spec.Order })

	originalCode := code
	chain := sourcemap.NewChain()

	for _, e := range entries {
		pc := pluginctx.NewTransform(c.newContext(e.name).WithActiveID(id).WithActiveCode(code), id, originalCode, chain)

		c.pending.Add(1)
		res, err := e.spec.Handler(context.Background(), pc, code, id)
		c.pending.Done()
		if err != nil {
			return nil, perror.Format(err, nil, pc)
		}
		if res == nil {
			continue
		}
		if res.CodeSet {
			code = res.Code
		}
		if res.MapSet {
			chain.Push(res.Map, id, originalCode)
		}
		if res.Meta != nil && c.graph != nil {
			if node := c.graph.GetModuleByID(id); node != nil {
				if node.Info == nil {
					node.Info = &hookctx.ModuleInfo{ID: id}
				}
				if node.Info.Meta == nil {
					node.Info.Meta = map[string]any{}
				}
				for k, v := range res.Meta {
					node.Info.Meta[k] = v
				}
			}
		}
	}

	return &hookctx.TransformResult{Code: code, Map: chain.GetCombined(id, originalCode)}, nil
}

// --- 4.5.6 watchChange ---

type watchChangeEntry struct {
	name string
	spec *plugin.HookSpec[plugin.WatchChangeFunc]
}

// WatchChange runs watchChange in parallel on plugins that provide it; no
// result aggregation beyond the first error.
func (c *Container) WatchChange(id string, change hookctx.ChangeEvent) error {
	var entries []watchChangeEntry
	for _, p := range c.plugins {
		if p.WatchChange != nil {
			entries = append(entries, watchChangeEntry{p.Name, p.WatchChange})
		}
	}
	ctx := c.newContext("")
	return runParallel(c, entries, func(e watchChangeEntry) error {
		return e.spec.Handler(context.Background(), ctx, id, change)
	})
}

// --- 4.5.7/4.5.8 close ---

// Close is idempotent. It waits for all outstanding hook invocations, then
// runs buildEnd then closeBundle, aggregating each phase's errors with
// go-multierror so that one plugin's failure never skips another's
// finalizer (spec §7).
func (c *Container) Close(buildErr error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.pending.Wait()

	var result *multierror.Error

	var beEntries []struct {
		name string
		spec *plugin.HookSpec[plugin.BuildEndFunc]
	}
	for _, p := range c.plugins {
		if p.BuildEnd != nil {
			beEntries = append(beEntries, struct {
				name string
				spec *plugin.HookSpec[plugin.BuildEndFunc]
			}{p.Name, p.BuildEnd})
		}
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, e := range beEntries {
		wg.Add(1)
		go func(name string, spec *plugin.HookSpec[plugin.BuildEndFunc]) {
			defer wg.Done()
			if err := spec.Handler(context.Background(), c.newContext(name), buildErr); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("buildEnd[%s]: %w", name, err))
				mu.Unlock()
			}
		}(e.name, e.spec)
	}
	wg.Wait()

	var cbEntries []struct {
		name string
		spec *plugin.HookSpec[plugin.CloseBundleFunc]
	}
	for _, p := range c.plugins {
		if p.CloseBundle != nil {
			cbEntries = append(cbEntries, struct {
				name string
				spec *plugin.HookSpec[plugin.CloseBundleFunc]
			}{p.Name, p.CloseBundle})
		}
	}
	wg = sync.WaitGroup{}
	for _, e := range cbEntries {
		wg.Add(1)
		go func(name string, spec *plugin.HookSpec[plugin.CloseBundleFunc]) {
			defer wg.Done()
			if err := spec.Handler(context.Background(), c.newContext(name)); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("closeBundle[%s]: %w", name, err))
				mu.Unlock()
			}
		}(e.name, e.spec)
	}
	wg.Wait()

	if result != nil {
		return result.ErrorOrNil()
	}
	return nil
}

// invocationID is a correlation id for structured logging around a single
// hook dispatch, per SPEC_FULL's ambient identifiers section.
func invocationID() string { return uuid.NewString() }
