// Package perror implements the plugin-error enrichment pipeline: attaching
// plugin/id/code attribution, computing a source location and code frame,
// and remapping that location through a transform's combined source map
// back to the pre-transform original.
package perror

import (
	"errors"
	"fmt"

	"loomdev/hookctx"
	"loomdev/internal/codeframe"
	"loomdev/sourcemap"
)

// Sentinel errors surfaced by the container and environment.
var (
	ErrClosedServer             = errors.New("closed server")
	ErrOutdatedOptimizedDep     = errors.New("outdated optimized dep")
	ErrModuleInfoMissing        = errors.New("module info missing")
	ErrUnsupportedContextMethod = errors.New("unsupported context method")
)

// Pos is the optional position hint passed alongside an error to Format:
// either a byte offset into the active code, or an explicit line/column.
type Pos struct {
	Offset       int
	HasOffset    bool
	Line, Column int
	HasLineCol   bool
}

// ActiveContext is the narrow, duck-typed view of a plugin context perror
// needs. pluginctx.Context and pluginctx.TransformContext satisfy it
// structurally; this package never imports pluginctx, avoiding a cycle.
type ActiveContext interface {
	ActivePluginName() string
	ActiveID() string
	ActiveCode() (string, bool)
}

// TransformActiveContext is additionally satisfied by a transform context:
// it can remap a location through its combined source map.
type TransformActiveContext interface {
	ActiveContext
	CombinedSourcemap() *sourcemap.Map
	OriginalFilename() string
}

// PluginError is a plugin-attributed, location-enriched error.
type PluginError struct {
	Plugin     string
	ID         string
	PluginCode string
	HasCode    bool
	Loc        *hookctx.Loc
	Frame      string
	Cause      error
}

func (e *PluginError) Error() string {
	msg := e.Cause.Error()
	if e.Plugin != "" {
		msg = fmt.Sprintf("[plugin %s] %s", e.Plugin, msg)
	}
	if e.Loc != nil {
		msg = fmt.Sprintf("%s (%s:%d:%d)", msg, e.Loc.File, e.Loc.Line, e.Loc.Column)
	}
	return msg
}

func (e *PluginError) Unwrap() error { return e.Cause }

// AlreadyFormatted reports whether err is already a *PluginError — step 1
// of the formatter: "already has a pluginCode field, return it unchanged".
func AlreadyFormatted(err error) (*PluginError, bool) {
	var pe *PluginError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Format implements the five-step enrichment algorithm: already-formatted
// short-circuit, attribution, location computation, transform-relative
// remapping, and loc scrubbing.
func Format(err error, pos *Pos, ctx ActiveContext) *PluginError {
	if pe, ok := AlreadyFormatted(err); ok {
		return pe
	}

	pe := &PluginError{Cause: err, Plugin: ctx.ActivePluginName(), ID: ctx.ActiveID()}
	if code, ok := ctx.ActiveCode(); ok {
		pe.PluginCode = code
		pe.HasCode = true
	}

	loc := computeLoc(pos, pe)
	if tctx, ok := ctx.(TransformActiveContext); ok && loc != nil && (loc.Line != 0 || loc.Column != 0) {
		loc = remap(loc, tctx)
	}
	if loc != nil && loc.File == "" && loc.Line == 0 && loc.Column == 0 {
		loc = nil
	}
	pe.Loc = loc
	return pe
}

// computeLoc implements step 3: byte-offset translation, falling back to an
// explicit line/column, against the active code.
func computeLoc(pos *Pos, pe *PluginError) *hookctx.Loc {
	if pos == nil || !pe.HasCode {
		return nil
	}
	if pos.HasOffset {
		line, col, ok := codeframe.OffsetToPosition(pe.PluginCode, pos.Offset)
		if !ok {
			return nil
		}
		// codeframe.Frame's column parameter is 1-indexed, but col here is
		// the 0-indexed column this module reports on Loc (spec's pos/loc
		// convention) — shift by one only for caret placement.
		pe.Frame = codeframe.Frame(pe.PluginCode, line, col+1, 2)
		return &hookctx.Loc{File: pe.ID, Line: line, Column: col}
	}
	if pos.HasLineCol {
		pe.Frame = codeframe.Frame(pe.PluginCode, pos.Line, pos.Column+1, 2)
		return &hookctx.Loc{File: pe.ID, Line: pos.Line, Column: pos.Column}
	}
	return nil
}

// remap implements step 4: translate a transform-local location through the
// combined source map back to the pre-transform original, when resolvable.
// The combined map produced by sourcemap.Chain carries no real VLQ mapping
// table (see sourcemap package docs), so remapping here is intentionally
// conservative: it only rewrites loc.File to the map's recorded source when
// exactly one source is present, leaving line/column untouched rather than
// guessing at a mapping this module does not decode.
func remap(loc *hookctx.Loc, tctx TransformActiveContext) *hookctx.Loc {
	m := tctx.CombinedSourcemap()
	if m == nil || len(m.Sources) != 1 {
		return loc
	}
	out := *loc
	out.File = m.Sources[0]
	return &out
}
