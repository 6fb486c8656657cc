package pluginctx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loomdev/hookctx"
	"loomdev/sourcemap"
)

type fakeContainer struct {
	resolveCalls []hookctx.ResolveOptions
	watchFiles   []string
}

func (f *fakeContainer) ResolveID(id, importer string, opts hookctx.ResolveOptions) (*hookctx.ResolvedID, error) {
	f.resolveCalls = append(f.resolveCalls, opts)
	return &hookctx.ResolvedID{ID: id}, nil
}

func (f *fakeContainer) Load(id string, opts hookctx.LoadOptions) (*hookctx.LoadResult, error) {
	return &hookctx.LoadResult{Code: "loaded:" + id}, nil
}

func (f *fakeContainer) Transform(code, id string) (*hookctx.TransformResult, error) {
	return &hookctx.TransformResult{Code: code}, nil
}

func (f *fakeContainer) AddWatchFile(id string)  { f.watchFiles = append(f.watchFiles, id) }
func (f *fakeContainer) WatchFiles() []string    { return f.watchFiles }

type fakeGraph struct {
	nodes map[string]*hookctx.ModuleNode
}

func newFakeGraph() *fakeGraph { return &fakeGraph{nodes: map[string]*hookctx.ModuleNode{}} }

func (g *fakeGraph) EnsureEntryFromURL(url string) (*hookctx.ModuleNode, error) {
	if n, ok := g.nodes[url]; ok {
		return n, nil
	}
	n := &hookctx.ModuleNode{ID: url, URL: url, Info: &hookctx.ModuleInfo{ID: url, URL: url}}
	g.nodes[url] = n
	return n, nil
}

func (g *fakeGraph) GetModuleByID(id string) *hookctx.ModuleNode { return g.nodes[id] }

func (g *fakeGraph) IDs() []string {
	var ids []string
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

func TestResolveIncludesActivePluginInSkipSet(t *testing.T) {
	fc := &fakeContainer{}
	ctx := New(fc, newFakeGraph(), nil, nil, "p1", nil)

	_, err := ctx.Resolve("./x", "/root/index.html", hookctx.ResolveOptions{})
	require.NoError(t, err)
	require.Len(t, fc.resolveCalls, 1)
	_, skipped := fc.resolveCalls[0].Skip["p1"]
	assert.True(t, skipped)
}

func TestLoadUpdatesModuleInfoAndTransforms(t *testing.T) {
	fc := &fakeContainer{}
	graph := newFakeGraph()
	ctx := New(fc, graph, nil, nil, "p1", nil)

	info, err := ctx.Load("/x.js", hookctx.LoadOptions{})
	require.NoError(t, err)
	require.NotNil(t, info)
	require.NotNil(t, info.Code)
	assert.Equal(t, "loaded:/x.js", *info.Code)
}

func TestWarnRecordsMessage(t *testing.T) {
	fc := &fakeContainer{}
	var warnings []hookctx.WarnMessage
	ctx := New(fc, newFakeGraph(), nil, nil, "p1", &warnings)

	ctx.Warn(errors.New("careful"), nil)
	require.Len(t, warnings, 1)
	assert.Equal(t, "p1", warnings[0].Plugin)
}

func TestEmitFileWarnsAndReturnsEmpty(t *testing.T) {
	fc := &fakeContainer{}
	var warnings []hookctx.WarnMessage
	ctx := New(fc, newFakeGraph(), nil, nil, "p1", &warnings)

	id, err := ctx.EmitFile("a.txt", []byte("x"), "asset")
	require.NoError(t, err)
	assert.Equal(t, "", id)
	assert.Len(t, warnings, 1)
}

func TestTransformContextCombinedSourcemapFallsBackToIdentity(t *testing.T) {
	fc := &fakeContainer{}
	base := New(fc, newFakeGraph(), nil, nil, "p1", nil)
	tctx := NewTransform(base, "/x.js", "abc", sourcemap.NewChain())

	m := tctx.GetCombinedSourcemap()
	require.NotNil(t, m)
	assert.NotEmpty(t, m.Mappings)
}
