package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"

	"github.com/shinji-kodama/devserve/internal/model"
)

// Publisher makes the current instance's identity discoverable.
//
// Publish is called once, before the listener starts accepting requests.
// Clear is best-effort: callers on the shutdown path ignore its error.
type Publisher interface {
	Publish(state model.DiscoveryState) error
	Clear() error
}

// FilePublisher writes the PID and port records into two files inside dir.
//
// The two writes are independent; a crash between them can leave only one
// file behind. Each write replaces any previous content, so a second
// instance started in the same directory silently takes over the records.
type FilePublisher struct {
	dir string
}

// NewFilePublisher returns a FilePublisher rooted at dir.
// An empty dir means the current working directory.
func NewFilePublisher(dir string) *FilePublisher {
	if dir == "" {
		dir = "."
	}
	return &FilePublisher{dir: dir}
}

// PIDPath returns the absolute-or-relative path of the PID record.
func (p *FilePublisher) PIDPath() string {
	return filepath.Join(p.dir, model.PIDFileName)
}

// PortPath returns the path of the port record.
func (p *FilePublisher) PortPath() string {
	return filepath.Join(p.dir, model.PortFileName)
}

// Publish writes both records as decimal strings, PID first.
func (p *FilePublisher) Publish(state model.DiscoveryState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	if err := os.WriteFile(p.PIDPath(), []byte(state.PIDString()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", model.PIDFileName, err)
	}
	if err := os.WriteFile(p.PortPath(), []byte(state.PortString()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", model.PortFileName, err)
	}
	return nil
}

// Clear removes both records. A record that does not exist is not an
// error. Both removals are always attempted; their failures are combined.
func (p *FilePublisher) Clear() error {
	return multierr.Combine(
		removeIfExists(p.PortPath()),
		removeIfExists(p.PIDPath()),
	)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Read loads the records published in dir. It is the consumer side of
// FilePublisher, used by tooling that wants to talk to a running instance.
func Read(dir string) (model.DiscoveryState, error) {
	p := NewFilePublisher(dir)

	pidData, err := os.ReadFile(p.PIDPath())
	if err != nil {
		return model.DiscoveryState{}, fmt.Errorf("failed to read %s: %w", model.PIDFileName, err)
	}
	portData, err := os.ReadFile(p.PortPath())
	if err != nil {
		return model.DiscoveryState{}, fmt.Errorf("failed to read %s: %w", model.PortFileName, err)
	}

	pid, err := model.ParseRecord(string(pidData))
	if err != nil {
		return model.DiscoveryState{}, err
	}
	port, err := model.ParseRecord(string(portData))
	if err != nil {
		return model.DiscoveryState{}, err
	}
	return model.DiscoveryState{PID: pid, Port: port}, nil
}

// MemoryPublisher is an in-memory Publisher. It is safe for concurrent use.
type MemoryPublisher struct {
	mu        sync.Mutex
	current   *model.DiscoveryState
	published []model.DiscoveryState
	clears    int

	// PublishErr, when set, is returned by Publish without recording.
	PublishErr error
	// ClearErr, when set, is returned by Clear after clearing.
	ClearErr error
}

// NewMemoryPublisher returns an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records state as the current identity.
func (m *MemoryPublisher) Publish(state model.DiscoveryState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	s := state
	m.current = &s
	m.published = append(m.published, state)
	return nil
}

// Clear forgets the current identity.
func (m *MemoryPublisher) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	m.clears++
	return m.ClearErr
}

// Current returns the published identity, if any.
func (m *MemoryPublisher) Current() (model.DiscoveryState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return model.DiscoveryState{}, false
	}
	return *m.current, true
}

// Published returns every state passed to Publish, in order.
func (m *MemoryPublisher) Published() []model.DiscoveryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DiscoveryState, len(m.published))
	copy(out, m.published)
	return out
}

// Clears returns how many times Clear was called.
func (m *MemoryPublisher) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}
