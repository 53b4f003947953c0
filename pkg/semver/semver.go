// Package semver matches npm-style version ranges against published versions.
//
// It is a thin wrapper around github.com/Masterminds/semver/v3, which already
// understands caret, tilde, x-range, hyphen and "||" ranges. The wrapper adds
// npm's "any version" spellings and works on plain strings, since version
// maps from the registry are keyed by string.
package semver

import (
	"fmt"
	"slices"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// anyRange lists the spellings npm accepts for "any version".
var anyRange = map[string]bool{"": true, "*": true, "latest": true, "x": true, "X": true}

// IsAny reports whether rng accepts every non-prerelease version.
func IsAny(rng string) bool {
	return anyRange[strings.TrimSpace(rng)]
}

// ParseRange parses an npm-style range.
func ParseRange(rng string) (*mm.Constraints, error) {
	rng = strings.TrimSpace(rng)
	if anyRange[rng] {
		rng = "*"
	}
	c, err := mm.NewConstraint(rng)
	if err != nil {
		return nil, fmt.Errorf("semver: parse range %q: %w", rng, err)
	}
	return c, nil
}

// Satisfies reports whether version satisfies rng. Unparsable input never
// satisfies.
func Satisfies(version, rng string) bool {
	v, err := mm.NewVersion(version)
	if err != nil {
		return false
	}
	c, err := ParseRange(rng)
	if err != nil {
		return false
	}
	return c.Check(v)
}

// Satisfying returns every version satisfying rng in ascending order.
// Unparsable versions are skipped.
func Satisfying(versions []string, rng string) []string {
	c, err := ParseRange(rng)
	if err != nil {
		return nil
	}
	var out []*mm.Version
	for _, raw := range versions {
		v, err := mm.NewVersion(raw)
		if err != nil || !c.Check(v) {
			continue
		}
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b *mm.Version) int { return a.Compare(b) })

	res := make([]string, len(out))
	for i, v := range out {
		res[i] = v.Original()
	}
	return res
}

// MaxSatisfying returns the highest version satisfying rng.
func MaxSatisfying(versions []string, rng string) (string, bool) {
	matched := Satisfying(versions, rng)
	if len(matched) == 0 {
		return "", false
	}
	return matched[len(matched)-1], true
}

// Highest returns the highest parsable version, prereleases included.
func Highest(versions []string) (string, bool) {
	var best *mm.Version
	for _, raw := range versions {
		v, err := mm.NewVersion(raw)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return "", false
	}
	return best.Original(), true
}

// Sort orders versions ascending by precedence. Unparsable versions sort
// first, in lexical order.
func Sort(versions []string) {
	slices.SortStableFunc(versions, func(a, b string) int {
		va, errA := mm.NewVersion(a)
		vb, errB := mm.NewVersion(b)
		switch {
		case errA != nil && errB != nil:
			return strings.Compare(a, b)
		case errA != nil:
			return -1
		case errB != nil:
			return 1
		}
		return va.Compare(vb)
	})
}
