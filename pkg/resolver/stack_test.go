package resolver

import "testing"

func TestStackPushDoesNotAlias(t *testing.T) {
	base := Stack{}.Push(Frame{Name: "a", Version: "1.0.0", Path: "a"})
	left := base.Push(Frame{Name: "b", Version: "1.0.0", Path: "b"})
	right := base.Push(Frame{Name: "c", Version: "1.0.0", Path: "c"})

	if len(base) != 1 {
		t.Fatalf("base mutated: %v", base)
	}
	if left[1].Name != "b" || right[1].Name != "c" {
		t.Errorf("siblings share a backing array: left=%v right=%v", left, right)
	}
	if got := left.String(); got != "a@1.0.0 > b@1.0.0" {
		t.Errorf("String() = %q", got)
	}
}

func TestStackSatisfies(t *testing.T) {
	s := Stack{
		{Name: "a", Version: "1.4.0"},
		{Name: "b", Version: "2.0.0"},
	}
	tests := []struct {
		name, rng string
		want      bool
	}{
		{"a", "^1.0.0", true},
		{"a", "^2.0.0", false},
		{"b", "", true},
		{"c", "*", false},
	}
	for _, tt := range tests {
		if got := s.Satisfies(tt.name, tt.rng); got != tt.want {
			t.Errorf("Satisfies(%q, %q) = %v, want %v", tt.name, tt.rng, got, tt.want)
		}
	}
}

func TestNestingParent(t *testing.T) {
	frame := func(name, path string, deps map[string]string) Frame {
		return Frame{Name: name, Version: "1.0.0", Path: path, Dependencies: deps}
	}

	tests := []struct {
		desc       string
		stack      Stack
		wantParent string
		wantOK     bool
	}{
		{
			desc:   "empty stack",
			stack:  nil,
			wantOK: false,
		},
		{
			desc:       "depth 1, parent accepts",
			stack:      Stack{frame("a", "a", map[string]string{"x": "^1.0.0"})},
			wantParent: "a",
			wantOK:     true,
		},
		{
			desc: "depth 2, only the root frame accepts",
			stack: Stack{
				frame("a", "a", map[string]string{"x": "^1.0.0"}),
				frame("b", "b", map[string]string{"x": "^2.0.0"}),
			},
			wantParent: "a/node_modules/b",
			wantOK:     true,
		},
		{
			desc: "frame without a range on the name accepts",
			stack: Stack{
				frame("a", "a", map[string]string{"x": "^2.0.0"}),
				frame("b", "b", map[string]string{"y": "^1.0.0"}),
				frame("c", "c", map[string]string{"x": "^2.0.0"}),
			},
			wantParent: "b/node_modules/c",
			wantOK:     true,
		},
		{
			desc: "nested frame keeps its install path",
			stack: Stack{
				frame("a", "q/node_modules/a", map[string]string{"x": "~1.5.0"}),
				frame("b", "b", map[string]string{"x": "^3.0.0"}),
			},
			wantParent: "q/node_modules/a/node_modules/b",
			wantOK:     true,
		},
		{
			desc: "no frame accepts",
			stack: Stack{
				frame("a", "a", map[string]string{"x": "^2.0.0"}),
				frame("b", "b", map[string]string{"x": "^3.0.0"}),
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			parent, ok := nestingParent(tt.stack, "x", "1.5.0")
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if parent != tt.wantParent {
				t.Errorf("parent = %q, want %q", parent, tt.wantParent)
			}
		})
	}
}

func TestInstallPath(t *testing.T) {
	if got := installPath("", "x"); got != "x" {
		t.Errorf("installPath(\"\", x) = %q", got)
	}
	if got := installPath("a/node_modules/b", "x"); got != "a/node_modules/b/node_modules/x" {
		t.Errorf("installPath = %q", got)
	}
}
