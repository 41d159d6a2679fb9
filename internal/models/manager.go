// Package models manages the catalog of downloadable whisper.cpp models:
// which are installed, downloading new ones, and the persisted choice of
// the active model.
package models

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/chaz8081/gostt-overlay/internal/state"
)

var (
	ErrUnknownModel       = errors.New("models: unknown model")
	ErrAlreadyDownloading = errors.New("models: download already in progress")
	ErrNotInstalled       = errors.New("models: model not installed")
	ErrNoActiveModel      = errors.New("models: no active model selected")
	// ErrInferenceFailed is raised by the local engine for any failure
	// after the model file was located.
	ErrInferenceFailed = errors.New("models: local inference failed")
)

// Descriptor describes a catalog model and its local install state.
type Descriptor struct {
	Name            string `json:"name"`
	FileName        string `json:"fileName"`
	URL             string `json:"url"`
	SizeDescription string `json:"size"`
	RAMDescription  string `json:"ram"`
	RAMBytes        uint64 `json:"ramBytes"`
	Installed       bool   `json:"installed"`
	Path            string `json:"path,omitempty"`
	FitsInMemory    bool   `json:"fitsInMemory"`
}

// Store persists the active model name. *state.Store implements it.
type Store interface {
	ActiveModel() (string, error)
	SetActiveModel(name string) error
}

// Manager lists, downloads and selects models in a single directory.
type Manager struct {
	dir      string
	baseURL  string
	client   *http.Client
	store    Store
	totalRAM func() (uint64, error)

	mu       sync.Mutex
	inflight map[string]bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithMemoryProbe overrides how total system memory is read.
func WithMemoryProbe(fn func() (uint64, error)) Option {
	return func(m *Manager) { m.totalRAM = fn }
}

// NewManager creates a manager storing models in dir and fetching them from
// baseURL (the file name is appended).
func NewManager(dir, baseURL string, store Store, opts ...Option) *Manager {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	m := &Manager{
		dir:      dir,
		baseURL:  baseURL,
		client:   http.DefaultClient,
		store:    store,
		totalRAM: systemMemory,
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func systemMemory() (uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.Total, nil
}

// List returns every catalog model with its install state. The result is
// derived from the catalog and the filesystem only.
func (m *Manager) List() []Descriptor {
	total, err := m.totalRAM()
	if err != nil {
		slog.Debug("[models] reading system memory", "error", err)
		total = 0
	}

	out := make([]Descriptor, 0, len(catalog))
	for _, e := range catalog {
		out = append(out, m.describe(e, total))
	}
	return out
}

// Lookup returns the descriptor for one model.
func (m *Manager) Lookup(name string) (Descriptor, error) {
	e, ok := lookup(name)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	total, _ := m.totalRAM()
	return m.describe(e, total), nil
}

func (m *Manager) describe(e catalogEntry, totalRAM uint64) Descriptor {
	d := Descriptor{
		Name:            e.Name,
		FileName:        e.FileName,
		URL:             m.baseURL + e.FileName,
		SizeDescription: e.SizeDescription,
		RAMDescription:  e.RAMDescription,
		RAMBytes:        e.RAMBytes,
		FitsInMemory:    totalRAM == 0 || e.RAMBytes <= totalRAM,
	}
	path := filepath.Join(m.dir, e.FileName)
	if installed(path) {
		d.Installed = true
		d.Path = path
	}
	return d
}

func installed(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Path returns the file path of an installed model.
func (m *Manager) Path(name string) (string, error) {
	e, ok := lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	path := filepath.Join(m.dir, e.FileName)
	if !installed(path) {
		return "", fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	return path, nil
}

// SelectActive persists name as the active model. The model must be
// installed; otherwise nothing is written.
func (m *Manager) SelectActive(name string) error {
	if _, err := m.Path(name); err != nil {
		return err
	}
	if err := m.store.SetActiveModel(name); err != nil {
		return fmt.Errorf("models: saving active model: %w", err)
	}
	slog.Info("[models] active model selected", "model", name)
	return nil
}

// Active returns the persisted active model name.
func (m *Manager) Active() (string, error) {
	name, err := m.store.ActiveModel()
	if errors.Is(err, state.ErrNotSet) {
		return "", ErrNoActiveModel
	}
	if err != nil {
		return "", fmt.Errorf("models: reading active model: %w", err)
	}
	return name, nil
}

func (m *Manager) begin(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[name] {
		return false
	}
	m.inflight[name] = true
	return true
}

func (m *Manager) finish(name string) {
	m.mu.Lock()
	delete(m.inflight, name)
	m.mu.Unlock()
}

// Downloading reports whether a download for name is in flight.
func (m *Manager) Downloading(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight[name]
}
