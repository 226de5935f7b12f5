// Package loader implements the VM's SourceLoader contract on top of the
// filesystem: module sources are parsed with a host-supplied parse
// function, simplified, compiled, and cached keyed on their resolved path.
// Cached entries are invalidated when the file's modification time changes,
// so live-coded modules reload between frames.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonathonfletcher/flitter/ast"
	"github.com/jonathonfletcher/flitter/compiler"
	"github.com/jonathonfletcher/flitter/program"
)

// ParseFunc turns module source text into a program root. The textual
// grammar lives outside the engine; hosts inject their parser here.
type ParseFunc func(source string) (*ast.Top, error)

// FileLoader loads, compiles and caches module programs.
type FileLoader struct {
	parse    ParseFunc
	simplify *ast.SimplifyOptions

	mu    sync.Mutex
	cache map[string]*entry
}

type entry struct {
	program *program.Program
	modTime time.Time
	err     error
}

// NewFileLoader returns a loader that parses with parse and simplifies
// each module with the given options (nil for defaults) before compiling.
func NewFileLoader(parse ParseFunc, simplify *ast.SimplifyOptions) *FileLoader {
	return &FileLoader{
		parse:    parse,
		simplify: simplify,
		cache:    make(map[string]*entry),
	}
}

// Load resolves filename relative to the directory of currentPath and
// returns the compiled program for it. Load is idempotent for an unchanged
// file; a modified file is recompiled on the next call.
func (l *FileLoader) Load(filename, currentPath string) (*program.Program, error) {
	path := filename
	if !filepath.IsAbs(path) && currentPath != "" {
		path = filepath.Join(filepath.Dir(currentPath), filename)
	}
	info, statErr := os.Stat(path)

	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.cache[path]; ok {
		if statErr == nil && cached.modTime.Equal(info.ModTime()) {
			return cached.program, cached.err
		}
	}
	if statErr != nil {
		return nil, fmt.Errorf("loader: unable to read %q: %w", path, statErr)
	}

	prog, err := l.compile(path)
	l.cache[path] = &entry{program: prog, modTime: info.ModTime(), err: err}
	return prog, err
}

func (l *FileLoader) compile(path string) (*program.Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: unable to read %q: %w", path, err)
	}
	top, err := l.parse(string(source))
	if err != nil {
		return nil, fmt.Errorf("loader: unable to parse %q: %w", path, err)
	}
	simplified, _ := ast.Simplify(top, l.simplify)
	prog, err := compiler.Compile(simplified.(*ast.Top))
	if err != nil {
		return nil, fmt.Errorf("loader: unable to compile %q: %w", path, err)
	}
	prog.SetPath(path)
	return prog, nil
}

// Flush drops every cached entry.
func (l *FileLoader) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*entry)
}
