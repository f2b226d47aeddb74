package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

const manifestFile = "plugin.json"

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// Manager discovers plugins under a directory and hands them out by name.
type Manager struct {
	pluginDir string
	log       zerolog.Logger
	plugins   map[string]*Plugin
	mu        sync.RWMutex
}

// NewManager creates a Manager for pluginDir.
func NewManager(pluginDir string, log zerolog.Logger) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		log:       log.With().Str("component", "plugins").Logger(),
		plugins:   make(map[string]*Plugin),
	}
}

// Discover rescans the plugin directory. Each subdirectory holding a
// plugin.json manifest is one plugin; unreadable manifests are skipped.
// A missing directory is not an error.
func (m *Manager) Discover() error {
	entries, err := os.ReadDir(m.pluginDir)
	if errors.Is(err, fs.ErrNotExist) {
		m.replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read plugin dir: %w", err)
	}

	found := make(map[string]*Plugin, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := loadPlugin(filepath.Join(m.pluginDir, entry.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			m.log.Warn().Err(err).Str("dir", entry.Name()).Msg("Skipping plugin")
			continue
		}
		found[p.Manifest.Name] = p
		m.log.Debug().Str("plugin", p.Manifest.Name).Str("version", p.Manifest.Version).Msg("Discovered plugin")
	}

	m.replace(found)
	m.log.Info().Int("count", len(found)).Str("dir", m.pluginDir).Msg("Plugins discovered")
	return nil
}

func (m *Manager) replace(plugins map[string]*Plugin) {
	if plugins == nil {
		plugins = make(map[string]*Plugin)
	}
	m.mu.Lock()
	m.plugins = plugins
	m.mu.Unlock()
}

// loadPlugin reads dir/plugin.json. The directory name stands in for a
// missing manifest name.
func loadPlugin(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestFile, err)
	}
	if manifest.Name == "" {
		manifest.Name = filepath.Base(dir)
	}
	return &Plugin{
		Manifest:   manifest,
		Path:       dir,
		Executable: filepath.Join(dir, manifest.Executable),
	}, nil
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return plugin, nil
}

// List returns all discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, plugin := range m.plugins {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})
	return plugins
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
