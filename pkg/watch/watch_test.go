package watch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/poltergeist/conjure/pkg/config"
	"github.com/poltergeist/conjure/pkg/watch"
)

type recordingCompiler struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (c *recordingCompiler) Compile(_ context.Context, roots []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, append([]string(nil), roots...))
	return c.err
}

func (c *recordingCompiler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func startWatcher(t *testing.T, c watch.Compiler, src, dest string) *watch.Watcher {
	t.Helper()
	w := watch.New(c, watch.Options{
		Sources:     []string{src},
		Destination: dest,
		QuietPeriod: 100 * time.Millisecond,
		Filter:      config.NewResourceFilter(),
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

func waitResult(t *testing.T, w *watch.Watcher, want string) watch.Result {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case res := <-w.Compiled():
			for _, c := range res.Changed {
				if c == want {
					return res
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a compile of %s", want)
		}
	}
}

func waitResource(t *testing.T, w *watch.Watcher, path string, kind watch.ResourceKind) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Resources():
			if ev.Path == path && ev.Kind == kind {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", kind, path)
		}
	}
}

func TestWatcher_CompilesAfterQuietPeriod(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	c := &recordingCompiler{}
	w := startWatcher(t, c, src, dest)

	a := filepath.Join(src, "A.kt")
	b := filepath.Join(src, "B.kt")
	os.WriteFile(a, []byte("class A"), 0644)
	os.WriteFile(b, []byte("class B"), 0644)

	res := waitResult(t, w, a)
	if res.Err != nil {
		t.Errorf("unexpected error: %v", res.Err)
	}
	if len(res.Changed) != 2 || res.Changed[0] != a || res.Changed[1] != b {
		t.Errorf("expected both changes coalesced, got %v", res.Changed)
	}

	c.mu.Lock()
	roots := c.calls[0]
	c.mu.Unlock()
	if len(roots) != 1 || roots[0] != src {
		t.Errorf("compiled roots = %v", roots)
	}
}

func TestWatcher_ReportsCompileErrors(t *testing.T) {
	src := t.TempDir()
	c := &recordingCompiler{err: errors.New("compilation failed")}
	w := startWatcher(t, c, src, t.TempDir())

	a := filepath.Join(src, "A.kt")
	os.WriteFile(a, []byte("class A {"), 0644)

	if res := waitResult(t, w, a); res.Err == nil {
		t.Error("expected compile error in result")
	}
}

func TestWatcher_NewDirectory(t *testing.T) {
	src := t.TempDir()
	w := startWatcher(t, &recordingCompiler{}, src, t.TempDir())

	pkg := filepath.Join(src, "app", "model")
	os.MkdirAll(pkg, 0755)
	file := filepath.Join(pkg, "User.kt")
	os.WriteFile(file, []byte("class User"), 0644)

	waitResult(t, w, file)
}

func TestWatcher_CopiesResources(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	os.MkdirAll(filepath.Join(src, "conf"), 0755)
	resource := filepath.Join(src, "conf", "app.properties")
	os.WriteFile(resource, []byte("a=1"), 0644)

	c := &recordingCompiler{}
	w := startWatcher(t, c, src, dest)
	waitResource(t, w, "conf/app.properties", watch.ResourceCreated)

	copied := filepath.Join(dest, "conf", "app.properties")
	past := time.Now().Add(-time.Hour)
	os.Chtimes(copied, past, past)

	// replace atomically so the copy never sees a truncated file
	staged := filepath.Join(t.TempDir(), "app.properties")
	os.WriteFile(staged, []byte("a=2"), 0644)
	if err := os.Rename(staged, resource); err != nil {
		t.Fatalf("rename: %v", err)
	}
	waitResource(t, w, "conf/app.properties", watch.ResourceUpdated)

	data, err := os.ReadFile(copied)
	if err != nil || string(data) != "a=2" {
		t.Errorf("copied resource = %q, %v", data, err)
	}

	os.WriteFile(filepath.Join(src, "conf", "app.properties___jb_old___"), []byte("x"), 0644)
	w.Await()
	if _, err := os.Stat(filepath.Join(dest, "conf", "app.properties___jb_old___")); !os.IsNotExist(err) {
		t.Error("editor backup file should not be copied")
	}
	if c.count() != 0 {
		t.Errorf("resources should not trigger compiles, got %d", c.count())
	}
}

func TestWatcher_SyncResourcesSkipsUpToDate(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	os.WriteFile(filepath.Join(src, "logback.xml"), []byte("<configuration/>"), 0644)
	os.WriteFile(filepath.Join(src, "Main.kt"), []byte("fun main() {}"), 0644)

	w := watch.New(&recordingCompiler{}, watch.Options{Sources: []string{src}, Destination: dest})
	if err := w.SyncResources(); err != nil {
		t.Fatalf("SyncResources: %v", err)
	}
	if err := w.SyncResources(); err != nil {
		t.Fatalf("SyncResources: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "logback.xml")); err != nil {
		t.Errorf("resource not copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "Main.kt")); !os.IsNotExist(err) {
		t.Error("sources must not be copied")
	}

	events := 0
	for len(w.Resources()) > 0 {
		<-w.Resources()
		events++
	}
	if events != 1 {
		t.Errorf("expected one copy event, got %d", events)
	}
}

func TestWatcher_StartStop(t *testing.T) {
	w := watch.New(&recordingCompiler{}, watch.Options{Sources: []string{t.TempDir()}})

	if err := w.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected second Start to fail")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestWatcher_MissingRoot(t *testing.T) {
	w := watch.New(&recordingCompiler{}, watch.Options{Sources: []string{filepath.Join(t.TempDir(), "missing")}})
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Error("expected error for missing source root")
	}
}

// gatedCompiler blocks every compile until released
type gatedCompiler struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (c *gatedCompiler) Compile(context.Context, []string) error {
	c.started <- struct{}{}
	<-c.release
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return nil
}

func (c *gatedCompiler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestWatcher_AwaitWaitsForQueuedChanges(t *testing.T) {
	src := t.TempDir()
	c := &gatedCompiler{started: make(chan struct{}, 4), release: make(chan struct{})}
	w := watch.New(c, watch.Options{Sources: []string{src}, QuietPeriod: 20 * time.Millisecond})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		close(c.release)
		w.Stop()
	})

	// nothing queued: returns at once
	w.Await()

	w.Queue(filepath.Join(src, "A.kt"))
	select {
	case <-c.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first compile did not start")
	}

	// a change arriving while the first compile runs needs a second compile
	w.Queue(filepath.Join(src, "B.kt"))

	awaited := make(chan struct{})
	go func() {
		w.Await()
		close(awaited)
	}()

	c.release <- struct{}{}
	select {
	case <-c.started:
	case <-time.After(5 * time.Second):
		t.Fatal("second compile did not start")
	}
	select {
	case <-awaited:
		t.Fatal("Await returned before the second compile finished")
	case <-time.After(50 * time.Millisecond):
	}

	c.release <- struct{}{}
	select {
	case <-awaited:
	case <-time.After(5 * time.Second):
		t.Fatal("Await did not return")
	}
	if c.count() != 2 {
		t.Errorf("expected 2 compiles, got %d", c.count())
	}
}

func TestWatcher_AwaitReturnsOnStop(t *testing.T) {
	src := t.TempDir()
	c := &gatedCompiler{started: make(chan struct{}, 4), release: make(chan struct{})}
	w := watch.New(c, watch.Options{Sources: []string{src}, QuietPeriod: time.Hour})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	w.Queue(filepath.Join(src, "A.kt"))
	awaited := make(chan struct{})
	go func() {
		w.Await()
		close(awaited)
	}()

	w.Stop()
	select {
	case <-awaited:
	case <-time.After(5 * time.Second):
		t.Fatal("Await did not return after Stop")
	}
	if c.count() != 0 {
		t.Errorf("expected no compiles, got %d", c.count())
	}
}
