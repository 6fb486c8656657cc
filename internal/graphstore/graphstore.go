// Package graphstore implements the live module dependency graph consumed
// by the plugin container and plugin contexts: nodes are modules keyed by
// resolved id/url, edges are "importer imports importee". Adapted from the
// declarative, validate-then-freeze graph in internal/graph: this graph is
// mutable and grows lazily as modules are resolved, but keeps the same
// discipline of deterministic, sorted iteration and guarded mutation.
package graphstore

import (
	"sort"
	"sync"

	"loomdev/hookctx"
)

// Store is a concrete hookctx.ModuleGraph: URL-keyed module nodes with
// importer/importee edges maintained as the container resolves modules.
type Store struct {
	mu    sync.Mutex
	byURL map[string]*hookctx.ModuleNode
	byID  map[string]*hookctx.ModuleNode
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		byURL: map[string]*hookctx.ModuleNode{},
		byID:  map[string]*hookctx.ModuleNode{},
	}
}

// EnsureEntryFromURL returns the existing node for url, creating one if
// absent. Never returns an error: the in-memory store cannot fail to
// produce a node for an id, unlike the teacher's on-disk parse/validate
// pipeline this is adapted from.
func (s *Store) EnsureEntryFromURL(url string) (*hookctx.ModuleNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.byURL[url]; ok {
		return n, nil
	}
	n := &hookctx.ModuleNode{
		ID:   url,
		URL:  url,
		Info: &hookctx.ModuleInfo{ID: url, URL: url},
	}
	s.byURL[url] = n
	s.byID[url] = n
	return n, nil
}

// GetModuleByID returns the node for id, or nil if absent.
func (s *Store) GetModuleByID(id string) *hookctx.ModuleNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

// GetModuleByURL returns the node for url, or nil if absent.
func (s *Store) GetModuleByURL(url string) *hookctx.ModuleNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byURL[url]
}

// IDs returns every known module id, sorted for deterministic iteration.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byID))
	for id := range s.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LinkImport records that importer imports importee, wiring both the
// importee's Importers back-edge and the importer's Info.ImportedIDs
// forward-edge. Both nodes must already exist.
func (s *Store) LinkImport(importerID, importeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	importer, ok := s.byID[importerID]
	if !ok {
		return
	}
	importee, ok := s.byID[importeeID]
	if !ok {
		return
	}

	for _, existing := range importee.Importers {
		if existing == importer {
			return
		}
	}
	importee.Importers = append(importee.Importers, importer)

	if importer.Info != nil {
		for _, id := range importer.Info.ImportedIDs {
			if id == importeeID {
				return
			}
		}
		importer.Info.ImportedIDs = append(importer.Info.ImportedIDs, importeeID)
	}
}

// Importers returns the sorted ids of modules that import id.
func (s *Store) Importers(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.Importers))
	for _, imp := range n.Importers {
		out = append(out, imp.ID)
	}
	sort.Strings(out)
	return out
}

// MarkInvalidationReceived sets LastHMRInvalidationReceived on the node at
// id, returning false if the node is absent.
func (s *Store) MarkInvalidationReceived(id string, received bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return false
	}
	n.LastHMRInvalidationReceived = received
	return true
}
