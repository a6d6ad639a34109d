package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poltergeist/conjure/pkg/logger"
)

// ReloadManager watches a configuration file and reports new versions
type ReloadManager struct {
	configPath     string
	logger         logger.Logger
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	lastModTime    time.Time
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	isWatching     bool
}

// ReloadCallback receives either a new valid configuration or the error
// that prevented loading it
type ReloadCallback func(*Config, error)

// NewReloadManager creates a new configuration reload manager
func NewReloadManager(configPath string, log logger.Logger) *ReloadManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReloadManager{
		configPath:     configPath,
		logger:         logger.OrNop(log),
		debouncePeriod: 500 * time.Millisecond,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// AddCallback adds a reload callback
func (rm *ReloadManager) AddCallback(callback ReloadCallback) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = append(rm.callbacks, callback)
}

// SetDebouncePeriod sets the debounce period for file change events
func (rm *ReloadManager) SetDebouncePeriod(period time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debouncePeriod = period
}

// StartWatching begins watching the configuration file for changes
func (rm *ReloadManager) StartWatching() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isWatching {
		return fmt.Errorf("already watching configuration file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// editors replace files, so the directory is watched
	if err := watcher.Add(filepath.Dir(rm.configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	rm.watcher = watcher

	if stat, err := os.Stat(rm.configPath); err == nil {
		rm.lastModTime = stat.ModTime()
	}
	rm.isWatching = true

	go rm.watchLoop(watcher)

	rm.logger.Debug("Started watching configuration file",
		logger.WithField("path", rm.configPath))
	return nil
}

// StopWatching stops watching the configuration file
func (rm *ReloadManager) StopWatching() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !rm.isWatching {
		return nil
	}
	rm.cancel()

	if rm.debounceTimer != nil {
		rm.debounceTimer.Stop()
		rm.debounceTimer = nil
	}
	if rm.watcher != nil {
		if err := rm.watcher.Close(); err != nil {
			rm.logger.Warn("Error closing file watcher", logger.WithField("error", err))
		}
		rm.watcher = nil
	}
	rm.isWatching = false
	return nil
}

// LastReload returns the modification time of the last loaded version
func (rm *ReloadManager) LastReload() time.Time {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.lastModTime
}

// TriggerReload reloads the configuration immediately
func (rm *ReloadManager) TriggerReload() {
	rm.handleConfigChange(false)
}

func (rm *ReloadManager) watchLoop(watcher *fsnotify.Watcher) {
	defer func() {
		if r := recover(); r != nil {
			rm.logger.Error("Configuration watcher panic recovered",
				logger.WithField("panic", r))
		}
	}()

	for {
		select {
		case <-rm.ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !rm.isConfigFileEvent(event.Name) {
				continue
			}
			rm.logger.Debug("Configuration file event received",
				logger.WithField("event", event.String()))
			rm.debounceReload(event.Op&fsnotify.Remove == fsnotify.Remove)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			rm.logger.Error("Configuration file watcher error",
				logger.WithField("error", err))
			rm.notifyCallbacks(nil, err)
		}
	}
}

func (rm *ReloadManager) isConfigFileEvent(eventPath string) bool {
	configFileName := filepath.Base(rm.configPath)
	eventFileName := filepath.Base(eventPath)
	return eventFileName == configFileName ||
		strings.HasPrefix(eventFileName, configFileName)
}

func (rm *ReloadManager) debounceReload(removed bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.debounceTimer != nil {
		rm.debounceTimer.Stop()
	}
	rm.debounceTimer = time.AfterFunc(rm.debouncePeriod, func() {
		rm.handleConfigChange(removed)
	})
}

func (rm *ReloadManager) handleConfigChange(removed bool) {
	stat, err := os.Stat(rm.configPath)
	if removed && os.IsNotExist(err) {
		rm.notifyCallbacks(nil, fmt.Errorf("configuration file was removed: %s", rm.configPath))
		return
	}
	if err != nil {
		rm.notifyCallbacks(nil, err)
		return
	}

	rm.mu.Lock()
	rm.lastModTime = stat.ModTime()
	rm.mu.Unlock()

	config, err := NewManager().LoadConfig(rm.configPath)
	if err != nil {
		rm.logger.Error("Failed to reload configuration", logger.WithField("error", err))
		rm.notifyCallbacks(nil, err)
		return
	}

	rm.logger.Info("Configuration reloaded",
		logger.WithField("modules", len(config.Modules)))
	rm.notifyCallbacks(config, nil)
}

func (rm *ReloadManager) notifyCallbacks(config *Config, err error) {
	rm.mu.RLock()
	callbacks := append([]ReloadCallback(nil), rm.callbacks...)
	rm.mu.RUnlock()

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					rm.logger.Error("Reload callback panic recovered",
						logger.WithField("panic", r))
				}
			}()
			callback(config, err)
		}()
	}
}
