package resolver

import (
	"strings"

	"github.com/matzehuels/pget/pkg/semver"
)

// Frame is one package on the resolution path: the version chosen for it,
// the dependency ranges it declares, and where it is installed.
type Frame struct {
	Name         string
	Version      string
	Dependencies map[string]string

	// Path is the install location relative to the top-level node_modules,
	// e.g. "express" or "express/node_modules/debug".
	Path string
}

// Stack is the chain of frames from a root dependency down to the package
// being resolved. The last frame is the immediate parent.
//
// A Stack is treated as immutable: Push never writes into the receiver's
// backing array, so sibling branches can each hold their own copy.
type Stack []Frame

// Push returns a new stack with f on top.
func (s Stack) Push(f Frame) Stack {
	out := make(Stack, len(s), len(s)+1)
	copy(out, s)
	return append(out, f)
}

// Top returns the immediate parent frame.
func (s Stack) Top() (Frame, bool) {
	if len(s) == 0 {
		return Frame{}, false
	}
	return s[len(s)-1], true
}

// Satisfies reports whether some frame already holds name at a version that
// satisfies constraint.
func (s Stack) Satisfies(name, constraint string) bool {
	for _, f := range s {
		if f.Name == name && semver.Satisfies(f.Version, constraint) {
			return true
		}
	}
	return false
}

// String renders the chain as "a@1.0.0 > b@2.0.0".
func (s Stack) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + "@" + f.Version
	}
	return strings.Join(parts, " > ")
}

// nestingParent finds the nearest frame, walking from the immediate parent
// towards the root, that tolerates name at version: it either declares no
// range for name or declares one version satisfies. The result is that
// frame's install path followed by the names of every frame above it,
// joined with "/node_modules/".
//
// It returns false when no frame tolerates the version, including for an
// empty stack.
func nestingParent(s Stack, name, version string) (string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		rng, declared := s[i].Dependencies[name]
		if declared && !semver.Satisfies(version, rng) {
			continue
		}
		parts := []string{s[i].Path}
		for _, f := range s[i+1:] {
			parts = append(parts, f.Name)
		}
		return strings.Join(parts, "/node_modules/"), true
	}
	return "", false
}

// installPath joins a parent path and a package name.
func installPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/node_modules/" + name
}
