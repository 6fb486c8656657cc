// Package environment implements the owning object of a per-environment
// plugin container: a named execution context bundling configuration, a
// module graph handle, a hot-reload channel, a dependency-optimizer handle,
// and the lifecycle that wires them together. DevEnvironment is the public
// surface a request-serving layer drives: init, fetchModule,
// transformRequest, warmupRequest, close, waitForRequestsIdle.
package environment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"loomdev/config"
	"loomdev/container"
	"loomdev/crawl"
	"loomdev/hmr"
	"loomdev/hookctx"
	"loomdev/internal/graphstore"
	"loomdev/logx"
	"loomdev/optimizer"
	"loomdev/perror"
	"loomdev/plugin"
)

// PendingRequest tracks one in-flight request being served by the
// environment, so shutdown can abort outstanding work deterministically.
type PendingRequest struct {
	URL       string
	Timestamp int64
	Abort     func()
}

// UpdateModulesFunc is invoked when hmr-invalidate propagation decides a set
// of importer modules needs to be re-sent to the client. The concrete
// transport (the runner interface, out of scope here) supplies this.
type UpdateModulesFunc func(ids []string, timestamp int64, invalidated bool)

// Environment is the named execution context: configuration, module graph,
// hot channel, and watcher. DevEnvironment embeds it and adds the
// request-serving lifecycle.
type Environment struct {
	Name        string
	Options     config.EnvironmentOptions
	Recoverable bool

	Graph   *graphstore.Store
	Hot     hmr.Channel
	Watcher hookctx.Watcher

	log logx.Logger
}

// Setup bundles the optional collaborators DevEnvironment is constructed
// with (spec §4.6): a hot channel (nil selects NoopChannel), a watcher, an
// externally-provided deps optimizer, and the plugin set.
type Setup struct {
	Hot           hmr.Channel
	Watcher       hookctx.Watcher
	DepsOptimizer optimizer.DepsOptimizer
	Plugins       []*plugin.Plugin
	OnUpdate      UpdateModulesFunc
	Log           logx.Logger
}

// DevEnvironment owns the module graph, hot channel, pending-request
// registry, the lazily-constructed container, the crawl-end finder, and the
// deps-optimizer selection.
type DevEnvironment struct {
	*Environment

	plugins   []*plugin.Plugin
	container *container.Container
	optimizer optimizer.DepsOptimizer
	onUpdate  UpdateModulesFunc

	mu        sync.Mutex
	initiated bool
	closing   bool
	pending   map[string]*PendingRequest
	crawl     *crawl.Finder
}

// New constructs a DevEnvironment, wiring the hot channel's hmr-invalidate
// listener and selecting the deps optimizer per the spec §4.6 table. The
// container itself is built lazily in Init.
func New(name string, opts config.EnvironmentOptions, setup Setup) *DevEnvironment {
	hot := setup.Hot
	if hot == nil {
		hot = hmr.NoopChannel{}
	}
	log := logx.OrNop(setup.Log)

	env := &Environment{
		Name:        name,
		Options:     opts,
		Recoverable: opts.Recoverable,
		Graph:       graphstore.New(),
		Hot:         hot,
		Watcher:     setup.Watcher,
		log:         log,
	}

	onUpdate := setup.OnUpdate
	if onUpdate == nil {
		onUpdate = func(ids []string, timestamp int64, invalidated bool) {
			log.Debugf("update-modules ids=%v timestamp=%d invalidated=%t (no runner wired)", ids, timestamp, invalidated)
		}
	}

	d := &DevEnvironment{
		Environment: env,
		plugins:     setup.Plugins,
		onUpdate:    onUpdate,
		pending:     map[string]*PendingRequest{},
		crawl:       crawl.New(),
	}

	d.optimizer = optimizer.Select(setup.DepsOptimizer, optimizer.Options{
		EnvironmentName:  name,
		NoDiscovery:      opts.OptimizeDeps.NoDiscovery,
		Include:          opts.OptimizeDeps.Include,
		DiscoveryEnabled: opts.OptimizeDeps.DiscoveryEnabled,
	})

	hot.On("hmr-invalidate", d.handleHMRInvalidate)
	return d
}

// handleHMRInvalidate implements the wiring described in spec §4.6: a
// self-accepting module with a positive last HMR timestamp that has not yet
// received an invalidation for this wave is marked invalidated and its
// direct importers are sent to the update routine; anything else, or a
// repeat invalidation, is a no-op.
func (d *DevEnvironment) handleHMRInvalidate(p hmr.Payload) {
	d.mu.Lock()
	closing := d.closing
	d.mu.Unlock()
	if closing {
		return
	}
	path, _ := p.Data["path"].(string)
	if path == "" {
		return
	}
	node := d.Graph.GetModuleByID(path)
	if node == nil {
		return
	}
	if !node.IsSelfAccepting || node.LastHMRTimestamp <= 0 || node.LastHMRInvalidationReceived {
		return
	}
	d.Graph.MarkInvalidationReceived(node.ID, true)
	d.log.Warnf("hmr invalidate: %s", path)

	importers := d.Graph.Importers(node.ID)
	d.onUpdate(importers, node.LastHMRTimestamp, true)
}

// Init is idempotent: it resolves plugins (folds options, runs buildStart)
// and builds the container. Safe to call more than once.
func (d *DevEnvironment) Init() error {
	d.mu.Lock()
	if d.initiated {
		d.mu.Unlock()
		return nil
	}
	d.initiated = true
	d.mu.Unlock()

	c := container.New(d.Options.Root, d.plugins, d.Graph, d.Watcher, d.log, d.Recoverable)
	if _, err := c.Options(plugin.InputOptions{Root: d.Options.Root}); err != nil {
		return err
	}
	if err := c.BuildStart(plugin.InputOptions{Root: d.Options.Root}); err != nil {
		return err
	}

	d.mu.Lock()
	d.container = c
	d.mu.Unlock()
	return nil
}

func (d *DevEnvironment) containerOrNil() *container.Container {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.container
}

func (d *DevEnvironment) checkClosing() error {
	d.mu.Lock()
	closing := d.closing
	recoverable := d.Recoverable
	d.mu.Unlock()
	if closing && !recoverable {
		return perror.ErrClosedServer
	}
	return nil
}

// FetchModule ensures id is present in the graph and returns its loaded
// module info, re-entering the container's load/transform pipeline. The
// concrete request-serving runner this delegates to in the conceptual
// original is out of scope here (spec.md §1); this implements the
// documented fallback behavior directly.
func (d *DevEnvironment) FetchModule(id, importer string) (*hookctx.ModuleInfo, error) {
	if err := d.checkClosing(); err != nil {
		return nil, err
	}
	c := d.containerOrNil()
	if c == nil {
		return nil, fmt.Errorf("fetchModule %q: %w", id, perror.ErrModuleInfoMissing)
	}

	resolved, err := c.ResolveID(id, importer, hookctx.ResolveOptions{})
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, fmt.Errorf("fetchModule: cannot resolve %q", id)
	}

	node, err := d.Graph.EnsureEntryFromURL(resolved.ID)
	if err != nil {
		return nil, err
	}
	if node.Info != nil && node.Info.Code != nil {
		return node.Info, nil
	}

	loadRes, err := c.Load(resolved.ID, hookctx.LoadOptions{})
	if err != nil {
		return nil, err
	}
	if loadRes == nil {
		return node.Info, nil
	}
	code := loadRes.Code
	if node.Info == nil {
		node.Info = &hookctx.ModuleInfo{ID: resolved.ID, URL: resolved.ID}
	}
	node.Info.Code = &code
	if _, err := c.Transform(code, resolved.ID); err != nil {
		return nil, err
	}
	return node.Info, nil
}

// TransformRequest runs the full resolveId -> load -> transform pipeline for
// url and returns the transform result. The request is cancelable: Close
// aborts it via the pending-request registry's cancel function, and the
// pipeline checks that cancellation at each hook boundary (between resolve
// and load, and between load and transform) rather than running a hook
// chain that was already abandoned to completion.
func (d *DevEnvironment) TransformRequest(url string) (*hookctx.TransformResult, error) {
	if err := d.checkClosing(); err != nil {
		return nil, err
	}
	c := d.containerOrNil()
	if c == nil {
		return nil, fmt.Errorf("transformRequest %q: container not initialized", url)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.registerRequestProcessing(url, cancel)
	defer func() {
		cancel()
		d.crawl.MarkIDAsDone(url)
	}()

	resolved, err := c.ResolveID(url, "", hookctx.ResolveOptions{})
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, fmt.Errorf("transformRequest: cannot resolve %q", url)
	}
	if ctx.Err() != nil {
		return nil, perror.ErrClosedServer
	}

	loadRes, err := c.Load(resolved.ID, hookctx.LoadOptions{})
	if err != nil {
		return nil, err
	}
	if loadRes == nil {
		return nil, fmt.Errorf("transformRequest: %q produced no loadable code", resolved.ID)
	}
	if ctx.Err() != nil {
		return nil, perror.ErrClosedServer
	}

	return c.Transform(loadRes.Code, resolved.ID)
}

// WarmupRequest is a best-effort TransformRequest: ErrOutdatedOptimizedDep
// and ErrClosedServer are swallowed silently (expected races); any other
// error is logged, never re-thrown.
func (d *DevEnvironment) WarmupRequest(url string) {
	_, err := d.TransformRequest(url)
	if err == nil {
		return
	}
	if errors.Is(err, perror.ErrOutdatedOptimizedDep) || errors.Is(err, perror.ErrClosedServer) {
		return
	}
	d.log.Errorf("warmup %s: %v", url, err)
}

// registerRequestProcessing registers id with the crawl-end finder and
// tracks it as a pending request whose abort callback actually cancels the
// request's context, per spec §4.6's `_registerRequestProcessing`.
func (d *DevEnvironment) registerRequestProcessing(id string, abort func()) {
	d.mu.Lock()
	d.pending[id] = &PendingRequest{URL: id, Timestamp: time.Now().UnixMilli(), Abort: abort}
	d.mu.Unlock()

	d.crawl.RegisterRequestProcessing(id, func() {})
}

// OnCrawlEnd appends a one-shot callback invoked when the initial wave of
// requests quiesces.
func (d *DevEnvironment) OnCrawlEnd(cb func()) { d.crawl.OnCrawlEnd(cb) }

// WaitForRequestsIdle delegates to the crawl-end finder.
func (d *DevEnvironment) WaitForRequestsIdle(ignoredID string) (cancelled bool, err error) {
	return d.crawl.Wait(ignoredID)
}

// Close is idempotent. It sets the closing flag (before touching the hot
// channel, so no hot event is processed against a dying graph), aborts
// outstanding pending requests, cancels the crawl-end finder, and closes
// the container and hot channel.
func (d *DevEnvironment) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	pending := d.pending
	d.pending = map[string]*PendingRequest{}
	c := d.container
	d.mu.Unlock()

	for _, p := range pending {
		if p.Abort != nil {
			p.Abort()
		}
	}

	d.crawl.Cancel()

	var closeErr error
	if c != nil {
		closeErr = c.Close(nil)
	}
	if err := d.Hot.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}
