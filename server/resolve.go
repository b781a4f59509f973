package server

import (
	"os"
	"path/filepath"
	"strings"
)

// Resolver maps a requested path onto the served root.
//
// With Confine off the root and the path token are concatenated verbatim, so
// ".." segments can leave the root. With Confine on the joined path is
// cleaned and anything outside the root resolves as missing.
type Resolver struct {
	Root    string
	Confine bool
}

// Resolve stats the target. Any stat failure, including permission errors
// and paths running through a regular file, is reported as missing.
func (r Resolver) Resolve(requested string) ResolvedResource {
	target, ok := r.target(requested)
	if !ok {
		return ResolvedResource{Kind: KindMissing, AbsolutePath: target}
	}

	info, err := os.Stat(target)
	if err != nil {
		return ResolvedResource{Kind: KindMissing, AbsolutePath: target}
	}

	if info.IsDir() {
		return ResolvedResource{Kind: KindDirectory, AbsolutePath: target}
	}

	return ResolvedResource{
		Kind:         KindFile,
		AbsolutePath: target,
		SizeBytes:    uint64(info.Size()),
	}
}

func (r Resolver) target(requested string) (string, bool) {
	if requested == "/" {
		return r.Root, true
	}

	if !r.Confine {
		return r.Root + requested, true
	}

	base, err := filepath.Abs(r.Root)
	if err != nil {
		return r.Root, false
	}

	full := filepath.Join(base, filepath.FromSlash(requested))
	if !within(base, full) {
		return full, false
	}
	return full, true
}

// within reports whether path is base itself or lies below it.
func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
