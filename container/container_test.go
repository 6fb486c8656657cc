package container

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loomdev/hook"
	"loomdev/hookctx"
	"loomdev/perror"
	"loomdev/plugin"
)

func resolvePlugin(name string, fn plugin.ResolveIDFunc) *plugin.Plugin {
	return &plugin.Plugin{Name: name, ResolveID: plugin.Func(fn)}
}

func TestResolveIDFirstNonNullWins(t *testing.T) {
	p1 := resolvePlugin("p1", func(ctx context.Context, pc hookctx.Context, id, importer string, opts hookctx.ResolveOptions) (*hookctx.ResolvedID, error) {
		return nil, nil
	})
	p2 := resolvePlugin("p2", func(ctx context.Context, pc hookctx.Context, id, importer string, opts hookctx.ResolveOptions) (*hookctx.ResolvedID, error) {
		return &hookctx.ResolvedID{ID: id}, nil
	})

	c := New("/root", []*plugin.Plugin{p1, p2}, nil, nil, nil, false)
	res, err := c.ResolveID("./x", "", hookctx.ResolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "/root/x", res.ID)
}

func TestResolveIDSkipsPluginsInSkipSet(t *testing.T) {
	called := false
	p1 := resolvePlugin("p1", func(ctx context.Context, pc hookctx.Context, id, importer string, opts hookctx.ResolveOptions) (*hookctx.ResolvedID, error) {
		called = true
		return &hookctx.ResolvedID{ID: id}, nil
	})

	c := New("/root", []*plugin.Plugin{p1}, nil, nil, nil, false)
	res, err := c.ResolveID("./x", "", hookctx.ResolveOptions{Skip: map[string]struct{}{"p1": {}}})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.False(t, called)
}

func TestResolveIDHonorsPreOrder(t *testing.T) {
	var order []string
	mk := func(name string, o hook.Order) *plugin.Plugin {
		return &plugin.Plugin{Name: name, ResolveID: plugin.WithOrder(plugin.ResolveIDFunc(
			func(ctx context.Context, pc hookctx.Context, id, importer string, opts hookctx.ResolveOptions) (*hookctx.ResolvedID, error) {
				order = append(order, name)
				return nil, nil
			}), o, false)}
	}
	c := New("/root", []*plugin.Plugin{mk("def", hook.OrderDefault), mk("pre", hook.OrderPre)}, nil, nil, nil, false)
	_, _ = c.ResolveID("x", "", hookctx.ResolveOptions{})
	assert.Equal(t, []string{"pre", "def"}, order)
}

func TestTransformAccumulatesCodeAndTracksMapSet(t *testing.T) {
	p1 := &plugin.Plugin{Name: "p1", Transform: plugin.Func(plugin.TransformFunc(
		func(ctx context.Context, pc hookctx.TransformContext, code, id string) (*hookctx.TransformHookResult, error) {
			return &hookctx.TransformHookResult{Code: code + ";p1", CodeSet: true}, nil
		}))}
	p2 := &plugin.Plugin{Name: "p2", Transform: plugin.Func(plugin.TransformFunc(
		func(ctx context.Context, pc hookctx.TransformContext, code, id string) (*hookctx.TransformHookResult, error) {
			return &hookctx.TransformHookResult{Code: code + ";p2", CodeSet: true}, nil
		}))}

	c := New("/root", []*plugin.Plugin{p1, p2}, nil, nil, nil, false)
	res, err := c.Transform("abc", "/x.js")
	require.NoError(t, err)
	assert.Equal(t, "abc;p1;p2", res.Code)
	require.NotNil(t, res.Map)
	// Neither plugin set MapSet, so nothing was pushed onto the chain and the
	// result is the identity map over the original code.
	assert.Equal(t, []string{"abc"}, res.Map.SourcesContent)
}

func TestTransformErrorEnrichedWithActivePlugin(t *testing.T) {
	p1 := &plugin.Plugin{Name: "p1", Transform: plugin.Func(plugin.TransformFunc(
		func(ctx context.Context, pc hookctx.TransformContext, code, id string) (*hookctx.TransformHookResult, error) {
			return nil, errors.New("boom")
		}))}

	c := New("/root", []*plugin.Plugin{p1}, nil, nil, nil, false)
	_, err := c.Transform("abcdef", "/x.js")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[plugin p1]")
}

func TestClosedContainerRejectsNewWork(t *testing.T) {
	c := New("/root", nil, nil, nil, nil, false)
	require.NoError(t, c.Close(nil))

	_, err := c.ResolveID("x", "", hookctx.ResolveOptions{})
	assert.ErrorIs(t, err, perror.ErrClosedServer)
}

func TestRecoverableContainerServesAfterClose(t *testing.T) {
	c := New("/root", nil, nil, nil, nil, true)
	require.NoError(t, c.Close(nil))

	_, err := c.ResolveID("x", "", hookctx.ResolveOptions{})
	assert.NoError(t, err)
}

func TestCloseRunsBuildEndThenCloseBundleSettlementStyle(t *testing.T) {
	var ran []string
	p1 := &plugin.Plugin{
		Name: "p1",
		BuildEnd: plugin.Func(plugin.BuildEndFunc(func(ctx context.Context, pc hookctx.Context, buildErr error) error {
			ran = append(ran, "buildEnd:p1")
			return errors.New("p1 failed")
		})),
		CloseBundle: plugin.Func(plugin.CloseBundleFunc(func(ctx context.Context, pc hookctx.Context) error {
			ran = append(ran, "closeBundle:p1")
			return nil
		})),
	}
	c := New("/root", []*plugin.Plugin{p1}, nil, nil, nil, false)
	err := c.Close(nil)
	require.Error(t, err)
	assert.Contains(t, ran, "buildEnd:p1")
	assert.Contains(t, ran, "closeBundle:p1")
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New("/root", nil, nil, nil, nil, false)
	require.NoError(t, c.Close(nil))
	require.NoError(t, c.Close(nil))
}
