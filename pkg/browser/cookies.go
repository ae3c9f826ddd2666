package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Jar persists cookies between sessions as a JSON file, so a crawl can
// reuse trust earned by an earlier run or by the cookie refresh routine.
type Jar struct {
	path string
}

// NewJar returns a Jar backed by path
func NewJar(path string) *Jar {
	return &Jar{path: path}
}

// Load reads the persisted cookie set. A missing file yields an empty set,
// not an error; a corrupt file is an error so callers can decide to reset.
func (j *Jar) Load() ([]Cookie, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cookie jar %s: %w", j.path, err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parsing cookie jar %s: %w", j.path, err)
	}
	return cookies, nil
}

// Save overwrites the jar with the given cookie set
func (j *Jar) Save(cookies []Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling cookies: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0644); err != nil {
		return fmt.Errorf("writing cookie jar %s: %w", j.path, err)
	}
	return nil
}

// Clear removes the jar file. Used when a probe navigation lands on a
// challenge page: retrying with known-bad cookies only burns attempts.
func (j *Jar) Clear() error {
	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing cookie jar %s: %w", j.path, err)
	}
	return nil
}
