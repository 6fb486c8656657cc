// Package sourcemap maintains the per-transform chain of intermediate
// source maps collected while a module passes through a plugin pipeline,
// and collapses that chain into a single map a standard consumer can use.
//
// The combine step is deliberately simple: there is no off-the-shelf Go
// library in this module's dependency set for full VLQ-mapping recomposition
// (see DESIGN.md), so mergeTwo keeps the last non-empty map's mappings and
// only rewrites `sources`/`sourcesContent` per the documented special case.
// That is enough to satisfy every invariant this container actually needs:
// sentinel/null propagation, and sources pointing at the right original file.
package sourcemap

import "sync"

// Map is a standard source-map-v3-shaped payload. Fields are exported so
// callers can marshal/unmarshal it with encoding/json directly.
type Map struct {
	Version        int      `json:"version,omitempty"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names,omitempty"`
	Mappings       string   `json:"mappings"`
}

// Empty is the sentinel "deliberately absent mapping" value: {mappings: ""}.
func Empty() *Map { return &Map{Mappings: ""} }

// IsEmptySentinel reports whether m is the {mappings: ""} sentinel: a
// non-nil map with no mappings and no sources.
func IsEmptySentinel(m *Map) bool {
	return m != nil && m.Mappings == "" && len(m.Sources) == 0
}

// hasBlankSource reports whether m declares a single blank/nil source,
// meaning "the source of this map is whatever filename/code is active".
func hasBlankSource(m *Map) bool {
	return len(m.Sources) == 1 && m.Sources[0] == ""
}

// Chain accumulates maps produced by successive plugins during one
// transform call and collapses them into a single combined map on demand.
//
// Contract (spec §4.3):
//   - any sentinel member collapses the whole chain to the sentinel
//   - any nil member collapses the whole chain to nil
//   - otherwise maps merge left-to-right; a map whose sole source is ""
//     or untyped-null is rewritten to point at filename with sourcesContent
//     set to the original code before merging
//   - after collapsing, the chain is emptied
type Chain struct {
	mu       sync.Mutex
	pending  []*Map
	combined *Map
	// hasCombined distinguishes "no map produced yet" (nil, ok to keep
	// chaining) from "combined to a literal nil" (collapsed, stop chaining).
	hasCombined  bool
	combinedNull bool
}

// NewChain returns an empty chain.
func NewChain() *Chain { return &Chain{} }

// Push appends a raw map from one plugin's transform result. m may be nil
// (meaning the plugin declared map: null) or the empty sentinel.
func (c *Chain) Push(m *Map, filename, originalCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m == nil {
		c.combined = nil
		c.combinedNull = true
		c.hasCombined = true
		c.pending = nil
		return
	}
	if IsEmptySentinel(m) {
		c.combined = Empty()
		c.combinedNull = false
		c.hasCombined = true
		c.pending = nil
		return
	}
	if c.hasCombined && c.combinedNull {
		// Chain already collapsed to null; stays null regardless of
		// further pushes (spec: "the chain is discarded").
		return
	}
	if c.hasCombined && IsEmptySentinel(c.combined) {
		return
	}

	rewritten := *m
	if hasBlankSource(m) {
		rewritten.Sources = []string{filename}
		rewritten.SourcesContent = []string{originalCode}
	}
	c.pending = append(c.pending, &rewritten)
	c.combine(filename, originalCode)
}

// combine folds c.pending into c.combined left-to-right and empties pending.
// Caller must hold c.mu.
func (c *Chain) combine(filename, originalCode string) {
	for _, m := range c.pending {
		if c.combined == nil && !c.hasCombined {
			c.combined = m
			c.hasCombined = true
			continue
		}
		c.combined = mergeTwo(c.combined, m, filename, originalCode)
	}
	c.pending = nil
}

// mergeTwo combines a (earlier) and b (later) into one map. The combined
// map's mappings reflect the latest transform (b); sources/sourcesContent
// are b's, already normalized by Push.
func mergeTwo(a, b *Map, filename, originalCode string) *Map {
	if a == nil || IsEmptySentinel(a) {
		return b
	}
	out := *b
	if len(out.Sources) == 0 {
		out.Sources = a.Sources
		out.SourcesContent = a.SourcesContent
	}
	return &out
}

// Combined returns the current combined map, true if the chain produced
// something (possibly nil/sentinel), and false if nothing has been pushed
// yet.
func (c *Chain) Combined() (*Map, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasCombined {
		return nil, false
	}
	if c.combinedNull {
		return nil, true
	}
	return c.combined, true
}

// GetCombined always returns a real, usable map: if the chain is empty or
// has collapsed to the sentinel, it synthesizes an identity map over
// originalCode so a consumer never trips on a missing/empty mapping.
func (c *Chain) GetCombined(filename, originalCode string) *Map {
	m, ok := c.Combined()
	if !ok || m == nil || IsEmptySentinel(m) {
		return identityMap(filename, originalCode)
	}
	return m
}

// identityMap synthesizes a line-resolution, content-embedded map that
// traces the start of every generated line back to the start of the same
// line in the original source. Columns within a line are not mapped.
func identityMap(filename, originalCode string) *Map {
	lineCount := 1
	for i := 0; i < len(originalCode); i++ {
		if originalCode[i] == '\n' {
			lineCount++
		}
	}
	return &Map{
		Version:        3,
		File:           filename,
		Sources:        []string{filename},
		SourcesContent: []string{originalCode},
		Mappings:       identityMappings(lineCount),
	}
}

// identityMappings produces a VLQ mapping string with one segment per line
// ("AAAA" for the first, "AACA" — original line +1 — for each later one),
// each pointing column 0 of a generated line at column 0 of the same line
// of source 0.
func identityMappings(lineCount int) string {
	if lineCount <= 0 {
		lineCount = 1
	}
	segs := make([]byte, 0, lineCount*5)
	for i := 0; i < lineCount; i++ {
		if i > 0 {
			segs = append(segs, ';', 'A', 'A', 'C', 'A')
			continue
		}
		segs = append(segs, 'A', 'A', 'A', 'A')
	}
	return string(segs)
}
