// Package store persists per-controller switch state so a process restart
// resumes an in-progress PWM/switch phase instead of assuming "off".
package store

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/unitherm/unitherm/internal/thermostat"
)

// FileStore keeps every controller's SwitchState in one YAML file, read once
// at startup and rewritten on every transition.
type FileStore struct {
	mu     sync.Mutex
	path   string
	states map[string]thermostat.SwitchState
}

func Open(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		states: map[string]thermostat.SwitchState{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.states); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return s, nil
}

func (s *FileStore) Load(name string) (thermostat.SwitchState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	return st, ok
}

func (s *FileStore) Save(name string, state thermostat.SwitchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[name] = state
	data, err := yaml.Marshal(s.states)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
