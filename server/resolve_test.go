package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolverKinds(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("12345"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	for _, confine := range []bool{true, false} {
		r := Resolver{Root: root, Confine: confine}

		if got := r.Resolve("/"); got.Kind != KindDirectory {
			t.Fatalf("confine=%v: / resolved to %s", confine, got.Kind)
		}
		if got := r.Resolve("/sub"); got.Kind != KindDirectory {
			t.Fatalf("confine=%v: /sub resolved to %s", confine, got.Kind)
		}

		got := r.Resolve("/a.txt")
		if got.Kind != KindFile || got.SizeBytes != 5 {
			t.Fatalf("confine=%v: /a.txt resolved to %+v", confine, got)
		}

		if got := r.Resolve("/nope.txt"); got.Kind != KindMissing {
			t.Fatalf("confine=%v: /nope.txt resolved to %s", confine, got.Kind)
		}
		if got := r.Resolve("/a.txt/inner"); got.Kind != KindMissing {
			t.Fatalf("confine=%v: path through a file resolved to %s", confine, got.Kind)
		}
	}
}

func TestResolverConfinement(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(parent, "outside.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	confined := Resolver{Root: root, Confine: true}
	if got := confined.Resolve("/../outside.txt"); got.Kind != KindMissing {
		t.Fatalf("confined resolver escaped root: %+v", got)
	}

	// The unconfined resolver reproduces verbatim concatenation.
	open := Resolver{Root: root, Confine: false}
	got := open.Resolve("/../outside.txt")
	if got.Kind != KindFile {
		t.Fatalf("unconfined resolver should follow ..: %+v", got)
	}
	if got.AbsolutePath != root+"/../outside.txt" {
		t.Fatalf("unconfined path = %q", got.AbsolutePath)
	}
}

func TestWithin(t *testing.T) {
	base := filepath.FromSlash("/srv/root")
	tests := map[string]bool{
		"/srv/root":          true,
		"/srv/root/a/b.txt":  true,
		"/srv/root/..a":      true,
		"/srv/rootx/a":       false,
		"/srv":               false,
		"/srv/root/../other": false,
	}
	for p, want := range tests {
		if got := within(base, filepath.Clean(filepath.FromSlash(p))); got != want {
			t.Fatalf("within(%q, %q) = %v, want %v", base, p, got, want)
		}
	}
}
