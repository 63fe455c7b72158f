package parser

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/wesm/cursor-history/internal/logging"
)

// maxResolveSteps bounds the search frames one Resolve may
// visit. Pruning keeps real searches far below it; it only
// matters below unreadable directories, where nothing prunes
// and the search would grow as 3^tokens.
const maxResolveSteps = 1 << 14

// Workspace is the directory a session ran in, reconstructed
// from the encoded project folder name. When Resolved is false,
// Path holds the encoded name unchanged and is not a filesystem
// path.
type Workspace struct {
	Path     string
	Resolved bool
}

// Resolver reconstructs workspace paths from Cursor project
// folder names. Cursor encodes an absolute path by replacing
// every "/" and "." with "-", so "-" in the folder name may have
// been a separator, a dot, or a literal dash. The resolver
// searches the three readings against the real filesystem.
//
// Filesystem lookups are memoized for the lifetime of the
// Resolver, so one Resolver should be used per index build.
type Resolver struct {
	root     string
	windows  bool
	maxSteps int

	mu       sync.Mutex
	dirs     map[string]bool
	listings map[string][]string
}

// NewResolver returns a Resolver that treats encoded names as
// paths below root. An empty root means the filesystem root.
func NewResolver(root string) *Resolver {
	if root == "" {
		root = string(filepath.Separator)
	}
	return &Resolver{
		root:     filepath.Clean(root),
		windows:  runtime.GOOS == "windows",
		maxSteps: maxResolveSteps,
		dirs:     make(map[string]bool),
		listings: make(map[string][]string),
	}
}

// ResolveWorkspace is a convenience wrapper around a one-shot
// Resolver.
func ResolveWorkspace(encoded, root string) Workspace {
	return NewResolver(root).Resolve(encoded)
}

// resolveFrame is one pending state of the search: tokens
// before next are consumed, segment is the path component being
// assembled and prefix is an existing directory.
type resolveFrame struct {
	next    int
	segment string
	prefix  string
}

// Resolve returns the first existing directory whose encoding
// equals encoded. At every "-" boundary the readings are tried
// in fixed order: path separator, then ".", then literal "-".
// When several directories encode to the same name, that order
// decides which one wins.
//
// A separator reading is only followed when the path built so
// far is an existing directory, and a segment is dropped as
// soon as no entry of its parent directory starts with it.
// A leading single-letter token is first read as a Windows
// drive ("c-Users-me" as C:\Users\me), see driveRoot.
// If nothing matches, the encoded name is returned unresolved.
func (r *Resolver) Resolve(encoded string) Workspace {
	unresolved := Workspace{Path: encoded}
	if encoded == "" {
		return unresolved
	}

	tokens := strings.Split(encoded, "-")
	stack := []resolveFrame{{
		next: 1, segment: tokens[0], prefix: r.root,
	}}
	if len(tokens) >= 2 {
		if drive, ok := r.driveRoot(tokens[0]); ok {
			stack = append(stack, resolveFrame{
				next: 2, segment: tokens[1], prefix: drive,
			})
		}
	}

	for steps := 0; len(stack) > 0; steps++ {
		if steps == r.maxSteps {
			logging.Debug().Str("folder", encoded).Int("steps", steps).
				Msg("workspace search budget exhausted")
			return unresolved
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.segment == "." || f.segment == ".." {
			continue
		}
		if f.segment != "" &&
			!r.hasEntryWithPrefix(f.prefix, f.segment) {
			continue
		}

		if f.next == len(tokens) {
			if f.segment == "" {
				continue
			}
			candidate := filepath.Join(f.prefix, f.segment)
			if r.isDir(candidate) {
				return Workspace{Path: candidate, Resolved: true}
			}
			continue
		}

		tok := tokens[f.next]
		// Pushed lowest priority first so "/" is popped first.
		stack = append(stack,
			resolveFrame{f.next + 1, f.segment + "-" + tok, f.prefix},
			resolveFrame{f.next + 1, f.segment + "." + tok, f.prefix},
		)
		if f.segment != "" {
			dir := filepath.Join(f.prefix, f.segment)
			if r.isDir(dir) {
				stack = append(stack,
					resolveFrame{f.next + 1, tok, dir},
				)
			}
		}
	}
	return unresolved
}

// driveRoot reads tok as a drive letter. On Windows every
// letter maps to its drive root. Elsewhere a drive is only used
// when a directory named like it ("C:") exists below the root.
func (r *Resolver) driveRoot(tok string) (string, bool) {
	if len(tok) != 1 {
		return "", false
	}
	c := tok[0]
	if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
		return "", false
	}
	drive := strings.ToUpper(tok) + ":"
	if r.windows {
		return drive + `\`, true
	}
	dir := filepath.Join(r.root, drive)
	return dir, r.isDir(dir)
}

func (r *Resolver) isDir(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.dirs[path]; ok {
		return v
	}
	info, err := os.Stat(path)
	v := err == nil && info.IsDir()
	r.dirs[path] = v
	return v
}

// hasEntryWithPrefix reports whether dir has an entry whose
// name starts with prefix. An unreadable directory never
// prunes; maxSteps bounds the search below one.
func (r *Resolver) hasEntryWithPrefix(dir, prefix string) bool {
	names, ok := r.listing(dir)
	if !ok {
		return true
	}
	i := sort.SearchStrings(names, prefix)
	return i < len(names) && strings.HasPrefix(names[i], prefix)
}

func (r *Resolver) listing(dir string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if names, ok := r.listings[dir]; ok {
		return names, names != nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		r.listings[dir] = nil
		return nil, false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	r.listings[dir] = names
	return names, true
}
