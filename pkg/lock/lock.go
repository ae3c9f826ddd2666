// Package lock provides named advisory leases over a shared filesystem
// directory. The crawl pipeline and the out-of-band cookie refresh use them
// to avoid driving a browser at the same time without a central coordinator.
// Leases are purely advisory: correctness depends on both routines checking
// before starting conflicting work.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Well-known lease names shared between the crawl pipeline and the cookie
// refresh routine.
const (
	NameParser  = "parser"
	NameCookies = "cookies"
)

// Lease is the on-disk lock payload
type Lease struct {
	Meta     map[string]string `json:"meta,omitempty"`
	PID      int               `json:"pid"`
	Acquired time.Time         `json:"acquired"`
	Expires  time.Time         `json:"expires"`
}

// Manager creates, inspects and removes lease files under a shared directory
type Manager struct {
	dir string
	log *logrus.Entry
}

// NewManager ensures dir exists and returns a Manager over it
func NewManager(dir string, log *logrus.Entry) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory %s: %w", dir, err)
	}
	return &Manager{dir: dir, log: log}, nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name+".lock")
}

// Acquire writes a lease for name valid for ttl, overwriting any existing
// file. It always succeeds barring filesystem errors: leases are advisory
// and the newest writer wins.
func (m *Manager) Acquire(name string, ttl time.Duration, meta map[string]string) error {
	now := time.Now()
	lease := Lease{
		Meta:     meta,
		PID:      os.Getpid(),
		Acquired: now,
		Expires:  now.Add(ttl),
	}

	data, err := json.MarshalIndent(lease, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling lease %s: %w", name, err)
	}
	if err := os.WriteFile(m.path(name), data, 0644); err != nil {
		return fmt.Errorf("writing lease file %s: %w", m.path(name), err)
	}

	m.log.WithFields(logrus.Fields{"lock": name, "ttl": ttl}).Debug("Lease acquired")
	return nil
}

// read returns the parsed lease for name, or nil when absent or unreadable.
// A corrupt lease file counts as absent.
func (m *Manager) read(name string) *Lease {
	data, err := os.ReadFile(m.path(name))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.log.Warnf("Failed to read lease file %s: %v", m.path(name), err)
		}
		return nil
	}

	var lease Lease
	if err := json.Unmarshal(data, &lease); err != nil {
		m.log.Warnf("Corrupt lease file %s: %v", m.path(name), err)
		return nil
	}
	return &lease
}

// IsActive reports whether a live lease exists for name. Expired lease
// files are deleted lazily here, on read.
func (m *Manager) IsActive(name string) bool {
	lease := m.read(name)
	if lease == nil {
		return false
	}

	if time.Now().After(lease.Expires) {
		if err := os.Remove(m.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.log.Warnf("Failed to remove expired lease %s: %v", name, err)
		}
		return false
	}
	return true
}

// Release removes the lease for name. Releasing an absent lease is a no-op.
func (m *Manager) Release(name string) {
	if err := os.Remove(m.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Warnf("Failed to remove lease %s: %v", name, err)
		return
	}
	m.log.WithField("lock", name).Debug("Lease released")
}
