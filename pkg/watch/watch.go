// Package watch recompiles source roots when their files change and keeps
// classpath resources in the destination up to date.
package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poltergeist/conjure/pkg/config"
	"github.com/poltergeist/conjure/pkg/logger"
)

// DefaultExtensions are the file suffixes treated as sources
var DefaultExtensions = []string{".kt", ".kts", ".java"}

// Compiler compiles a full set of source roots
type Compiler interface {
	Compile(ctx context.Context, sourceRoots []string) error
}

// Result reports one automatic compile
type Result struct {
	Changed  []string
	Err      error
	Duration time.Duration
	At       time.Time
}

// ResourceKind tells whether a copied resource is new
type ResourceKind int

const (
	ResourceCreated ResourceKind = iota
	ResourceUpdated
)

func (k ResourceKind) String() string {
	if k == ResourceUpdated {
		return "updated"
	}
	return "created"
}

// ResourceEvent reports a resource copied into the destination
type ResourceEvent struct {
	Kind ResourceKind
	// Path is relative to its source root.
	Path string
}

// Options configures a Watcher
type Options struct {
	Sources     []string
	Destination string
	QuietPeriod time.Duration
	Filter      *config.ResourceFilter
	Extensions  []string
	Logger      logger.Logger
}

// Watcher drives automatic compilation for one set of source roots.
// Changes are coalesced until no new change arrives for the quiet period;
// then the whole set is compiled. Compiles never overlap.
type Watcher struct {
	compiler Compiler
	sources  []string
	dest     string
	quiet    time.Duration
	filter   *config.ResourceFilter
	exts     []string
	log      logger.Logger

	results   chan Result
	resources chan ResourceEvent

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	running bool
	// queued counts changes seen; compiled is the highest count a
	// finished compile covered. settled is signalled when compiled moves.
	queued   uint64
	compiled uint64
	settled  *sync.Cond

	compileMu sync.Mutex
}

// New creates a watcher; call Start to begin watching
func New(c Compiler, opts Options) *Watcher {
	quiet := opts.QuietPeriod
	if quiet <= 0 {
		quiet = config.DefaultQuietPeriod
	}
	filter := opts.Filter
	if filter == nil {
		filter = config.NewResourceFilter()
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	sources := make([]string, 0, len(opts.Sources))
	for _, s := range opts.Sources {
		if abs, err := filepath.Abs(s); err == nil {
			s = abs
		}
		sources = append(sources, s)
	}

	w := &Watcher{
		compiler:  c,
		sources:   sources,
		dest:      opts.Destination,
		quiet:     quiet,
		filter:    filter,
		exts:      exts,
		log:       logger.OrNop(opts.Logger),
		results:   make(chan Result, 16),
		resources: make(chan ResourceEvent, 64),
		pending:   make(map[string]struct{}),
	}
	w.settled = sync.NewCond(&w.mu)
	return w
}

// Compiled delivers the result of every automatic compile. Results are
// dropped when nobody keeps up with the channel.
func (w *Watcher) Compiled() <-chan Result { return w.results }

// Resources delivers resource copy events
func (w *Watcher) Resources() <-chan ResourceEvent { return w.resources }

// Start watches every directory under the source roots and copies the
// resources already present
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	for _, root := range w.sources {
		if err := w.addDirectory(fsw, root); err != nil {
			fsw.Close()
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}

	w.fsw = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	if err := w.SyncResources(); err != nil {
		w.log.Warn("Failed to copy resources", logger.WithField("error", err))
	}

	w.wg.Add(1)
	go w.processEvents()

	w.log.Info(fmt.Sprintf("Watching %d source root(s)", len(w.sources)))
	return nil
}

// Stop ends watching and waits for a running compile to finish
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = make(map[string]struct{})
	w.settled.Broadcast()
	err := w.fsw.Close()
	w.mu.Unlock()

	w.wg.Wait()
	w.compileMu.Lock()
	w.compileMu.Unlock()
	return err
}

// Await blocks until every source change seen before the call has been
// compiled, or the watcher is stopped
func (w *Watcher) Await() {
	w.mu.Lock()
	defer w.mu.Unlock()

	target := w.queued
	for w.running && w.compiled < target {
		w.settled.Wait()
	}
}

// SyncResources copies every resource under the source roots that is
// missing from the destination or older there
func (w *Watcher) SyncResources() error {
	for _, root := range w.sources {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() || w.isSource(path) {
				return nil
			}
			return w.copyResource(root, path)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) addDirectory(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.filter.Ignored(path + "/") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			w.log.Warn(fmt.Sprintf("Failed to watch directory %s: %v", path, err))
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Watcher panic recovered", logger.WithField("panic", r))
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error(fmt.Sprintf("Watcher error: %v", err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || w.filter.Ignored(event.Name) {
		return
	}

	info, statErr := os.Stat(event.Name)
	if statErr == nil && info.IsDir() {
		if event.Op&fsnotify.Create == fsnotify.Create {
			// files created together with the directory raise no events
			w.addDirectory(w.fsw, event.Name)
			w.scanNewDirectory(event.Name)
		}
		return
	}

	if w.isSource(event.Name) {
		w.queue(event.Name)
		return
	}
	if statErr != nil {
		return
	}
	if root, ok := w.rootOf(event.Name); ok {
		if err := w.copyResource(root, event.Name); err != nil {
			w.log.Warn("Failed to copy resource",
				logger.WithField("path", event.Name),
				logger.WithField("error", err))
		}
	}
}

func (w *Watcher) scanNewDirectory(dir string) {
	root, ok := w.rootOf(dir)
	if !ok {
		return
	}
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || w.filter.Ignored(path) {
			return nil
		}
		if w.isSource(path) {
			w.queue(path)
		} else if err := w.copyResource(root, path); err != nil {
			w.log.Warn("Failed to copy resource", logger.WithField("path", path))
		}
		return nil
	})
}

func (w *Watcher) queue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	w.pending[path] = struct{}{}
	w.queued++
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.quiet, w.flush)
}

func (w *Watcher) flush() {
	w.compileMu.Lock()
	defer w.compileMu.Unlock()

	w.mu.Lock()
	if !w.running || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	w.pending = make(map[string]struct{})
	covered := w.queued
	ctx := w.ctx
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		if covered > w.compiled {
			w.compiled = covered
		}
		w.settled.Broadcast()
		w.mu.Unlock()
	}()

	sort.Strings(changed)
	w.log.Info(fmt.Sprintf("Compiling after %d change(s)", len(changed)))

	start := time.Now()
	err := w.compiler.Compile(ctx, w.sources)
	res := Result{Changed: changed, Err: err, Duration: time.Since(start), At: time.Now()}

	select {
	case w.results <- res:
	default:
		w.log.Debug("Dropped compile result, nobody is listening")
	}
}

func (w *Watcher) isSource(path string) bool {
	for _, ext := range w.exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (w *Watcher) rootOf(path string) (string, bool) {
	best := ""
	for _, root := range w.sources {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if len(root) > len(best) {
			best = root
		}
	}
	return best, best != ""
}

// copyResource copies a file below root to the same relative path in the
// destination when the destination copy is missing or older
func (w *Watcher) copyResource(root, path string) error {
	if w.dest == "" || w.filter.Ignored(path) {
		return nil
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}

	src, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !src.Mode().IsRegular() {
		return nil
	}

	to := filepath.Join(w.dest, rel)
	kind := ResourceCreated
	if dst, err := os.Stat(to); err == nil {
		if !dst.ModTime().Before(src.ModTime()) {
			return nil
		}
		kind = ResourceUpdated
	}

	if err := copyFile(path, to, src.Mode().Perm()); err != nil {
		return err
	}
	w.log.Info(fmt.Sprintf("Classpath resource %s: %s", kind, filepath.ToSlash(rel)))

	select {
	case w.resources <- ResourceEvent{Kind: kind, Path: filepath.ToSlash(rel)}:
	default:
	}
	return nil
}

func copyFile(from, to string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return err
	}
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
