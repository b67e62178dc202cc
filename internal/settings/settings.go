// Package settings holds the persisted backend settings used when dispatching
// ad reports, with optional hot reload of the settings file.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Defaults used when a key is missing, empty or zero.
const (
	DefaultBackendURL  = "http://localhost"
	DefaultBackendPort = 5500
)

// Backend is the collection endpoint configuration.
type Backend struct {
	URL  string `yaml:"backendUrl"`
	Port int    `yaml:"backendPort"`
}

// UnmarshalYAML accepts backendPort as a number or a numeric string. A port
// that is not a number is logged and left to the default.
func (b *Backend) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		URL  string    `yaml:"backendUrl"`
		Port yaml.Node `yaml:"backendPort"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	b.URL = raw.URL
	b.Port = 0

	if raw.Port.Kind == 0 {
		return nil
	}
	if raw.Port.Kind != yaml.ScalarNode {
		return fmt.Errorf("backendPort must be a number (line %d)", raw.Port.Line)
	}
	text := strings.TrimSpace(raw.Port.Value)
	if raw.Port.Tag == "!!null" || text == "" {
		return nil
	}
	port, err := strconv.Atoi(text)
	if err != nil || port < 0 || port > 65535 {
		log.Warn().
			Str("backend_port", raw.Port.Value).
			Int("default", DefaultBackendPort).
			Msg("Invalid backend port in settings, using default")
		return nil
	}
	b.Port = port
	return nil
}

// WithDefaults returns b with empty or zero fields replaced by the defaults.
func (b Backend) WithDefaults() Backend {
	if b.URL == "" {
		b.URL = DefaultBackendURL
	}
	if b.Port == 0 {
		b.Port = DefaultBackendPort
	}
	return b
}

// UploadURL returns the report endpoint for b.
func (b Backend) UploadURL() string {
	b = b.WithDefaults()
	return fmt.Sprintf("%s:%d/upload_ad", b.URL, b.Port)
}

// Static is a fixed settings source.
type Static Backend

// Backend returns the fixed settings with defaults applied.
func (s Static) Backend() Backend {
	return Backend(s).WithDefaults()
}

// Manager serves the settings stored in a YAML file.
// Reads are lock-free using atomic.Value.
type Manager struct {
	path    string
	current atomic.Value // Backend
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	reloads int64
	closed  bool
}

// NewManager creates a Manager for the file at path.
// A missing file is not an error: defaults are served until the file appears
// and Reload is called. With hotReload the file's directory is watched.
func NewManager(path string, hotReload bool) (*Manager, error) {
	m := &Manager{
		path:   path,
		stopCh: make(chan struct{}),
	}
	m.current.Store(Backend{}.WithDefaults())

	if path == "" {
		return m, nil
	}

	if err := m.Reload(); err != nil {
		return nil, err
	}

	if hotReload {
		if err := m.startWatcher(); err != nil {
			log.Warn().
				Err(err).
				Str("path", path).
				Msg("Failed to start settings watcher, hot-reload disabled")
		} else {
			log.Info().
				Str("path", path).
				Msg("Hot-reload enabled for settings file")
		}
	}

	return m, nil
}

// Path returns the settings file path.
func (m *Manager) Path() string {
	return m.path
}

// Backend returns the current backend settings with defaults applied.
func (m *Manager) Backend() Backend {
	return m.current.Load().(Backend)
}

// Reloads returns how many times the file has been loaded.
func (m *Manager) Reloads() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloads
}

// Reload reads the settings file again.
// On a parse failure the previous settings stay in use.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloadLocked()
}

func (m *Manager) reloadLocked() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		m.current.Store(Backend{}.WithDefaults())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	var b Backend
	if err := yaml.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("invalid settings file: %w", err)
	}

	m.current.Store(b.WithDefaults())
	m.reloads++

	log.Debug().
		Str("backend_url", b.URL).
		Int("backend_port", b.Port).
		Int64("reload_count", m.reloads).
		Msg("Settings loaded")
	return nil
}

// Save persists b and makes it current.
func (m *Manager) Save(b Backend) error {
	if m.path == "" {
		return fmt.Errorf("no settings path configured")
	}

	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	m.current.Store(b.WithDefaults())
	return nil
}

// Close stops the file watcher. Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// startWatcher watches the settings directory so the file may be created
// or replaced after startup.
func (m *Manager) startWatcher() error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	m.watcher = watcher
	m.wg.Add(1)
	go m.watchFile()
	return nil
}

func (m *Manager) watchFile() {
	defer m.wg.Done()

	// Coalesce bursts of events from editors that write in several steps
	const debounceDelay = 100 * time.Millisecond
	var debounceTimer *time.Timer

	target := filepath.Clean(m.path)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			log.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("Settings file changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				if err := m.Reload(); err != nil {
					log.Warn().
						Err(err).
						Str("path", m.path).
						Msg("Settings reload failed, keeping previous values")
				}
			})

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("File watcher error")

		case <-m.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}
