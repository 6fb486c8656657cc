package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type providedOptimizer struct{}

func (providedOptimizer) Mode() Mode             { return "custom" }
func (providedOptimizer) RegisterMissing(string) {}
func (providedOptimizer) NeedsReload(string) bool { return false }

func TestSelectPrefersCallerProvided(t *testing.T) {
	got := Select(providedOptimizer{}, Options{})
	assert.Equal(t, Mode("custom"), got.Mode())
}

func TestSelectNoneWhenDiscoveryDisabledAndIncludeEmpty(t *testing.T) {
	got := Select(nil, Options{NoDiscovery: true})
	assert.Equal(t, ModeNone, got.Mode())
}

func TestSelectFullAutoDiscoveryForClientEnvironment(t *testing.T) {
	got := Select(nil, Options{EnvironmentName: "client", DiscoveryEnabled: true})
	assert.Equal(t, ModeFullAutoDiscovery, got.Mode())
}

func TestSelectExplicitOnlyByDefault(t *testing.T) {
	got := Select(nil, Options{EnvironmentName: "ssr"})
	assert.Equal(t, ModeExplicitOnly, got.Mode())
}

func TestFullAutoDiscoveryFlagsMissingAsOutdated(t *testing.T) {
	o := Select(nil, Options{EnvironmentName: "client", DiscoveryEnabled: true})
	o.RegisterMissing("/x.js")
	assert.True(t, o.NeedsReload("/x.js"))
}
