// Package batch drives long-running multi-unit jobs with durable
// progress tracking. Job state lives in an explicit store passed into the
// driver rather than in a process-wide singleton, each unit's outcome is
// recorded as an explicit result, and expensive outputs are cached under
// a parameter-addressed key instead of relying on output-file presence.
package batch

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Status is the durable processing state of one unit.
type Status int

const (
	NotStarted Status = iota
	Done
	Failed
)

func (s Status) String() string {
	switch s {
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "not-started"
	}
}

// MarshalYAML stores the symbolic name rather than the enum value, so
// the store file stays readable and reorder-safe.
func (s Status) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s *Status) UnmarshalYAML(node *yaml.Node) error {
	switch node.Value {
	case "done":
		*s = Done
	case "failed":
		*s = Failed
	case "not-started", "":
		*s = NotStarted
	default:
		return fmt.Errorf("unknown status %q", node.Value)
	}
	return nil
}

// Store is a durable unit-id to status map. It is not safe for
// concurrent use; the driver owns it for the duration of a run.
type Store struct {
	path  string
	units map[string]Status
}

// OpenStore loads the store at path, starting empty when the file does
// not exist yet.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, units: map[string]Status{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &s.units); err != nil {
		return nil, fmt.Errorf("corrupt status store %s: %w", path, err)
	}
	return s, nil
}

// Get returns the recorded status of a unit; unknown units are
// NotStarted.
func (s *Store) Get(unit string) Status {
	return s.units[unit]
}

// Set records a unit's status in memory. Save makes it durable.
func (s *Store) Set(unit string, status Status) {
	s.units[unit] = status
}

// Units returns every known unit id in sorted order.
func (s *Store) Units() []string {
	ids := make([]string, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save persists the store. It writes through a temp file so a crash
// mid-save never truncates the previous state.
func (s *Store) Save() error {
	data, err := yaml.Marshal(s.units)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
