// Package local lays out downloaded strips on the local filesystem. The tree
// itself is the record of what has already been downloaded. Temporary files
// left by an interrupted run are removed by EnsureRoot.
package local

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/comic-archive-crawler/internal/crawler"
)

const (
	dirPerm       = 0o750
	defaultExt    = ".gif"
	tempPrefix    = "."
	tempSuffix    = ".*.part"
	writableProbe = ".writable_test"
)

// Config captures the parameters for the output tree.
type Config struct {
	// BaseDir is the root directory that receives {year}/{month}/{day}{ext}.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// Extension is appended to the day file name. Defaults to ".gif".
	Extension string `mapstructure:"extension" yaml:"extension"`
}

// Planner maps dates to target paths and writes files into the tree.
type Planner struct {
	fs      afero.Fs
	baseDir string
	ext     string
}

// New creates a Planner on the OS filesystem.
func New(cfg Config) (*Planner, error) {
	return NewWithFs(afero.NewOsFs(), cfg)
}

// NewWithFs creates a Planner on fs.
func NewWithFs(fs afero.Fs, cfg Config) (*Planner, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	ext := cfg.Extension
	if ext == "" {
		ext = defaultExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Planner{
		fs:      fs,
		baseDir: filepath.Clean(cfg.BaseDir),
		ext:     ext,
	}, nil
}

// Root returns the output root.
func (p *Planner) Root() string {
	return p.baseDir
}

// EnsureRoot creates the output root if needed, checks that it is a writable
// directory and removes temporary files left by an interrupted run. It must
// be called before any Place.
func (p *Planner) EnsureRoot() error {
	info, err := p.fs.Stat(p.baseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := p.fs.MkdirAll(p.baseDir, dirPerm); mkErr != nil {
			return &crawler.FilesystemError{Op: "create root", Path: p.baseDir, Err: mkErr}
		}
	case err != nil:
		return &crawler.FilesystemError{Op: "stat root", Path: p.baseDir, Err: err}
	case !info.IsDir():
		return &crawler.FilesystemError{Op: "stat root", Path: p.baseDir, Err: fmt.Errorf("not a directory")}
	}

	probe := filepath.Join(p.baseDir, writableProbe)
	if err := afero.WriteFile(p.fs, probe, []byte("test"), 0o600); err != nil {
		return &crawler.FilesystemError{Op: "write root", Path: p.baseDir, Err: err}
	}
	if err := p.fs.Remove(probe); err != nil {
		return &crawler.FilesystemError{Op: "clean root", Path: probe, Err: err}
	}
	return p.removeStaleTemps()
}

func (p *Planner) removeStaleTemps() error {
	err := afero.Walk(p.fs, p.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isTempName(info.Name()) {
			return nil
		}
		return p.fs.Remove(path)
	})
	if err != nil {
		return &crawler.FilesystemError{Op: "remove stale temp", Path: p.baseDir, Err: err}
	}
	return nil
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, ".part")
}

// TargetPath returns {base}/{year}/{month:02}/{day:02}{ext}.
func (p *Planner) TargetPath(date crawler.ParsedDate) string {
	return filepath.Join(
		p.baseDir,
		strconv.Itoa(date.Year),
		fmt.Sprintf("%02d", date.Month),
		fmt.Sprintf("%02d%s", date.Day, p.ext),
	)
}

// Exists reports whether path is already present.
func (p *Planner) Exists(path string) (bool, error) {
	ok, err := afero.Exists(p.fs, path)
	if err != nil {
		return false, &crawler.FilesystemError{Op: "stat", Path: path, Err: err}
	}
	return ok, nil
}

// EnsureDir creates dir and any missing parents. Concurrent callers creating
// the same directory all succeed.
func (p *Planner) EnsureDir(dir string) error {
	if err := p.fs.MkdirAll(dir, dirPerm); err != nil {
		return &crawler.FilesystemError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

// EnsureParentDir creates the directory that will hold path.
func (p *Planner) EnsureParentDir(path string) error {
	return p.EnsureDir(filepath.Dir(path))
}

// Place writes path through a temporary sibling file that is renamed into
// place only after fill succeeds, so path is either absent or complete.
// Errors from fill are returned unwrapped.
func (p *Planner) Place(path string, fill func(w io.Writer) error) (int64, error) {
	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(p.fs, dir, tempPrefix+filepath.Base(path)+tempSuffix)
	if err != nil {
		return 0, &crawler.FilesystemError{Op: "create temp", Path: dir, Err: err}
	}
	tmpName := tmp.Name()

	cw := &countingWriter{w: tmp}
	if err := fill(cw); err != nil {
		_ = tmp.Close()
		_ = p.fs.Remove(tmpName)
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		_ = p.fs.Remove(tmpName)
		return 0, &crawler.FilesystemError{Op: "close temp", Path: tmpName, Err: err}
	}
	if err := p.fs.Rename(tmpName, path); err != nil {
		_ = p.fs.Remove(tmpName)
		return 0, &crawler.FilesystemError{Op: "rename", Path: path, Err: err}
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}
