package state

// session_state.go
//
// Persisted editing-session state for datasettool. The file remembers which
// export and selection the operator worked on last plus recently opened
// exports, so `datasettool edit` can resume where it left off.
//
// Versioning: StateVersion enables forward migration. Increment only on a
// breaking structural change.
//
// Thread safety: SessionState is not synchronized; callers guard concurrent
// access.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// maxRecentExports bounds the recent-export list.
const maxRecentExports = 10

// SessionState is the full persisted session state (YAML).
type SessionState struct {
	StateVersion  int               `yaml:"stateVersion"`
	SavedAt       time.Time         `yaml:"savedAt"`
	LastExport    string            `yaml:"lastExport,omitempty"`
	LastSelection SelectionState    `yaml:"lastSelection"`
	RecentExports []string          `yaml:"recentExports"`
	Ratio         RatioDefaults     `yaml:"ratio"`
}

// SelectionState is the last component and light source viewed.
type SelectionState struct {
	Component string `yaml:"component,omitempty"`
	Light     string `yaml:"light,omitempty"`
}

// RatioDefaults are the percentages last used by the ratio command.
type RatioDefaults struct {
	TrainPass int `yaml:"trainPass"`
	TrainNG   int `yaml:"trainNG"`
}

// NewDefaultSessionState creates a SessionState with defaults.
func NewDefaultSessionState() *SessionState {
	return &SessionState{
		StateVersion:  1,
		SavedAt:       time.Now().UTC(),
		RecentExports: []string{},
		Ratio:         RatioDefaults{TrainPass: 80, TrainNG: 80},
	}
}

// LoadSessionState loads state from disk, returning defaults if the file is
// missing. An empty path means DefaultSessionStatePath.
func LoadSessionState(path string) (*SessionState, error) {
	if path == "" {
		path = DefaultSessionStatePath()
	}
	if err := confined(path); err != nil {
		return nil, err
	}
	// #nosec G304 validated path confined to user config directory above
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultSessionState(), nil
		}
		return nil, fmt.Errorf("state: read failed: %w", err)
	}
	var st SessionState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("state: parse failed: %w", err)
	}
	normalizeSessionState(&st)
	return &st, nil
}

// SaveSessionState persists the state atomically to disk.
func SaveSessionState(st *SessionState, path string) error {
	if st == nil {
		return errors.New("state: nil SessionState")
	}
	if path == "" {
		path = DefaultSessionStatePath()
	}
	if err := confined(path); err != nil {
		return err
	}
	st.SavedAt = time.Now().UTC()

	out, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("state: marshal failed: %w", err)
	}
	return writeFileAtomic(path, out, ".session_state.tmp-*")
}

// writeFileAtomic writes data to a 0600 temp file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("state: mkdir failed: %w", err)
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("state: temp create failed: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("state: temp write failed: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("state: chmod failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("state: sync failed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("state: atomic rename failed: %w", err)
	}
	return nil
}

// DefaultSessionStatePath returns the OS-specific default path for the state
// file.
func DefaultSessionStatePath() string {
	return filepath.Join(userConfigDir(), "datasettool", "session.yaml")
}

func confined(path string) error {
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(userConfigDir())+string(os.PathSeparator)) {
		return fmt.Errorf("state: path outside config dir: %s", path)
	}
	return nil
}

// userConfigDir attempts to resolve a configuration directory in a portable way.
func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config")
	}
	return "."
}

// normalizeSessionState fills defaults after load.
func normalizeSessionState(st *SessionState) {
	if st.StateVersion <= 0 {
		st.StateVersion = 1
	}
	if st.RecentExports == nil {
		st.RecentExports = []string{}
	}
	if len(st.RecentExports) > maxRecentExports {
		st.RecentExports = st.RecentExports[:maxRecentExports]
	}
	if st.Ratio.TrainPass < 0 || st.Ratio.TrainPass > 100 {
		st.Ratio.TrainPass = 80
	}
	if st.Ratio.TrainNG < 0 || st.Ratio.TrainNG > 100 {
		st.Ratio.TrainNG = 80
	}
}

// AppendRecentExport moves exportID to the front of the MRU list (de-duped,
// size-limited) and records it as the last export. Switching to a different
// export forgets the last selection.
func (s *SessionState) AppendRecentExport(exportID string) {
	if exportID == "" {
		return
	}
	if s.LastExport != exportID {
		s.LastSelection = SelectionState{}
	}
	s.LastExport = exportID

	filtered := make([]string, 0, len(s.RecentExports)+1)
	for _, existing := range s.RecentExports {
		if existing != exportID {
			filtered = append(filtered, existing)
		}
	}
	s.RecentExports = append([]string{exportID}, filtered...)
	if len(s.RecentExports) > maxRecentExports {
		s.RecentExports = s.RecentExports[:maxRecentExports]
	}
}

// RememberSelection records the component and light last viewed.
func (s *SessionState) RememberSelection(component, light string) {
	s.LastSelection = SelectionState{Component: component, Light: light}
}

// WriteTo writes the full YAML representation to an arbitrary writer.
func (s *SessionState) WriteTo(w io.Writer) (int64, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(out)
	return int64(n), err
}
