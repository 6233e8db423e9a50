// Package longpath keeps local writes working on hosts with a bounded
// maximum path length. Windows caps classic paths at 260 characters; the
// guard rewrites anything past the ceiling into the extended-length
// \\?\ form the Win32 I/O layer accepts, and reports the substitution so
// callers can surface it as a warning instead of failing the operation.
package longpath

import (
	"path/filepath"
	"runtime"
	"strings"
)

// WindowsMaxPath is the classic Win32 MAX_PATH ceiling.
const WindowsMaxPath = 260

const extendedPrefix = `\\?\`

// Guard checks candidate paths against a length ceiling. A zero Limit
// disables the guard entirely.
type Guard struct {
	Limit int

	// rewrite enables the \\?\ substitution. Only the Win32 layer
	// understands that form; other hosts accept long paths as-is, so the
	// guard there only reports the overflow.
	rewrite bool
}

// Default returns the guard appropriate for the host: the 260-character
// ceiling on Windows, disabled everywhere else.
func Default() *Guard {
	if runtime.GOOS == "windows" {
		return &Guard{Limit: WindowsMaxPath, rewrite: true}
	}
	return &Guard{}
}

// New returns a guard with an explicit ceiling, useful in tests. The
// substitution stays host-appropriate.
func New(limit int) *Guard {
	return &Guard{Limit: limit, rewrite: runtime.GOOS == "windows"}
}

// Substitution describes a path that crossed the ceiling and what the
// guard handed to the OS instead.
type Substitution struct {
	Original string
	Resolved string
}

// Resolve returns the path to hand to the OS for p. Paths within the
// ceiling pass through untouched. Past it, the guard substitutes an
// accepted representation and returns a non-nil Substitution; it never
// fails.
func (g *Guard) Resolve(p string) (string, *Substitution) {
	if g.Limit <= 0 || len(p) <= g.Limit {
		return p, nil
	}

	resolved := p
	if g.rewrite && !strings.HasPrefix(p, extendedPrefix) {
		if abs, err := filepath.Abs(p); err == nil {
			resolved = abs
		}
		resolved = extendedPrefix + resolved
	}

	return resolved, &Substitution{Original: p, Resolved: resolved}
}

// MustResolve is Resolve for callers that only need the usable path.
func (g *Guard) MustResolve(p string) string {
	resolved, _ := g.Resolve(p)
	return resolved
}
