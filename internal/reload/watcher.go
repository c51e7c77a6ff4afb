package reload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/timzifer/tsconsole/config"
)

// fingerprint identifies one version of a configuration file. The content
// digest is only recomputed when the stat data moved.
type fingerprint struct {
	modTime time.Time
	size    int64
	digest  uint64
	missing bool
}

func (f fingerprint) sameStat(info fs.FileInfo) bool {
	return !f.missing && info.ModTime().Equal(f.modTime) && info.Size() == f.size
}

func takeFingerprint(path string) (fingerprint, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fingerprint{missing: true}, nil
	}
	if err != nil {
		return fingerprint{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fingerprint{}, err
	}
	return fingerprint{modTime: info.ModTime(), size: info.Size(), digest: xxhash.Sum64(data)}, nil
}

// Watcher follows the configuration files of a running console. A file
// counts as changed when its content differs from the last version seen,
// so rewriting a file with identical content does not trigger a reload.
type Watcher struct {
	mu    sync.Mutex
	files map[string]fingerprint
}

// NewWatcher builds a watcher for root and every file cfg was assembled from.
func NewWatcher(root string, cfg *config.Config) (*Watcher, error) {
	watcher := &Watcher{}
	if err := watcher.Update(root, cfg); err != nil {
		return nil, err
	}
	return watcher, nil
}

// Update replaces the watched set with the files of cfg. The processor calls
// it after every accepted reload, picking up includes the new configuration
// added or dropped.
func (w *Watcher) Update(root string, cfg *config.Config) error {
	if w == nil {
		return nil
	}
	paths := config.SourceFiles(cfg)
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			paths = append(paths, abs)
		}
	}
	files := make(map[string]fingerprint, len(paths))
	for _, path := range uniquePaths(paths) {
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		fp, err := takeFingerprint(path)
		if err != nil {
			return fmt.Errorf("fingerprint %s: %w", path, err)
		}
		files[path] = fp
	}
	w.mu.Lock()
	w.files = files
	w.mu.Unlock()
	return nil
}

// Files lists the watched paths in lexical order.
func (w *Watcher) Files() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.files))
	for path := range w.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Check returns the files whose content changed or that vanished since the
// previous call. Every change is reported once, so a configuration the
// processor rejected is not retried until the file is edited again.
func (w *Watcher) Check() ([]string, error) {
	if w == nil {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0)
	var errs []error
	for path, last := range w.files {
		if info, err := os.Stat(path); err == nil && (info.IsDir() || last.sameStat(info)) {
			continue
		}
		fp, err := takeFingerprint(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("fingerprint %s: %w", path, err))
			continue
		}
		w.files[path] = fp
		switch {
		case fp.missing && last.missing:
		case fp.missing != last.missing, fp.digest != last.digest:
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed, errors.Join(errs...)
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		result = append(result, path)
	}
	return result
}
