package state

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// withConfigDir points the user config directory at a temp dir.
func withConfigDir(t *testing.T) string {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME override only applies on linux")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func TestNewDefaultSessionState(t *testing.T) {
	st := NewDefaultSessionState()
	if st.StateVersion != 1 {
		t.Errorf("expected StateVersion 1, got %d", st.StateVersion)
	}
	if st.RecentExports == nil {
		t.Error("expected RecentExports to be initialized")
	}
	if st.Ratio.TrainPass != 80 || st.Ratio.TrainNG != 80 {
		t.Errorf("unexpected ratio defaults: %+v", st.Ratio)
	}
}

func TestDefaultSessionStatePath(t *testing.T) {
	dir := withConfigDir(t)
	path := DefaultSessionStatePath()
	if want := filepath.Join(dir, "datasettool", "session.yaml"); path != want {
		t.Errorf("DefaultSessionStatePath() = %s, want %s", path, want)
	}
}

func TestSaveLoadSessionState(t *testing.T) {
	withConfigDir(t)

	st := NewDefaultSessionState()
	st.AppendRecentExport("e-1")
	st.RememberSelection("R1", "white")
	st.Ratio = RatioDefaults{TrainPass: 70, TrainNG: 60}

	if err := SaveSessionState(st, ""); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}

	loaded, err := LoadSessionState("")
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	if loaded.LastExport != "e-1" {
		t.Errorf("expected last export e-1, got %s", loaded.LastExport)
	}
	if loaded.LastSelection != (SelectionState{Component: "R1", Light: "white"}) {
		t.Errorf("unexpected selection: %+v", loaded.LastSelection)
	}
	if loaded.Ratio.TrainPass != 70 || loaded.Ratio.TrainNG != 60 {
		t.Errorf("unexpected ratio: %+v", loaded.Ratio)
	}
	if loaded.SavedAt.IsZero() {
		t.Error("expected SavedAt to be set")
	}

	info, err := os.Stat(DefaultSessionStatePath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(DefaultSessionStatePath()))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".session_state.tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLoadSessionState_Missing(t *testing.T) {
	withConfigDir(t)
	st, err := LoadSessionState("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.LastExport != "" {
		t.Errorf("expected defaults, got %+v", st)
	}
}

func TestLoadSessionState_OutsideConfigDir(t *testing.T) {
	withConfigDir(t)
	if _, err := LoadSessionState("/nonexistent/path/to/session.yaml"); err == nil {
		t.Fatal("expected error for path outside config dir")
	}
	if err := SaveSessionState(NewDefaultSessionState(), "/tmp/elsewhere/session.yaml"); err == nil {
		t.Fatal("expected error saving outside config dir")
	}
}

func TestLoadSessionState_Invalid(t *testing.T) {
	dir := withConfigDir(t)
	path := filepath.Join(dir, "datasettool", "session.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("stateVersion: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSessionState(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveSessionState_Nil(t *testing.T) {
	if err := SaveSessionState(nil, ""); err == nil {
		t.Fatal("expected error for nil state")
	}
}

func TestNormalizeSessionState(t *testing.T) {
	st := &SessionState{Ratio: RatioDefaults{TrainPass: 150, TrainNG: -1}}
	normalizeSessionState(st)

	if st.StateVersion != 1 {
		t.Errorf("expected StateVersion 1, got %d", st.StateVersion)
	}
	if st.RecentExports == nil {
		t.Error("expected collections to be initialized")
	}
	if st.Ratio.TrainPass != 80 || st.Ratio.TrainNG != 80 {
		t.Errorf("out-of-range ratios should reset, got %+v", st.Ratio)
	}
}

func TestAppendRecentExport(t *testing.T) {
	st := NewDefaultSessionState()

	t.Run("first export", func(t *testing.T) {
		st.AppendRecentExport("a")
		if len(st.RecentExports) != 1 || st.LastExport != "a" {
			t.Errorf("unexpected state: %+v", st.RecentExports)
		}
	})

	t.Run("duplicate moves to front", func(t *testing.T) {
		st.AppendRecentExport("b")
		st.AppendRecentExport("a")
		if got := strings.Join(st.RecentExports, ","); got != "a,b" {
			t.Errorf("expected a,b got %s", got)
		}
	})

	t.Run("empty ignored", func(t *testing.T) {
		st.AppendRecentExport("")
		if len(st.RecentExports) != 2 {
			t.Errorf("expected 2 entries, got %d", len(st.RecentExports))
		}
	})

	t.Run("bounded", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			st.AppendRecentExport(string(rune('c' + i)))
		}
		if len(st.RecentExports) != maxRecentExports {
			t.Errorf("expected %d entries, got %d", maxRecentExports, len(st.RecentExports))
		}
	})

	t.Run("switching export forgets selection", func(t *testing.T) {
		st.AppendRecentExport("x")
		st.RememberSelection("R1", "white")
		st.AppendRecentExport("x")
		if st.LastSelection.Component != "R1" {
			t.Error("same export should keep selection")
		}
		st.AppendRecentExport("y")
		if st.LastSelection != (SelectionState{}) {
			t.Errorf("expected cleared selection, got %+v", st.LastSelection)
		}
	})
}

func TestSessionState_WriteTo(t *testing.T) {
	st := NewDefaultSessionState()
	st.AppendRecentExport("e-9")
	var buf bytes.Buffer
	if _, err := st.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "lastExport: e-9") {
		t.Errorf("unexpected YAML:\n%s", buf.String())
	}
}

func TestFileCredentialStore(t *testing.T) {
	withConfigDir(t)
	s, err := NewFileCredentialStore("")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetToken("backend"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound, got %v", err)
	}
	if err := s.DeleteToken("backend"); err != nil {
		t.Errorf("DeleteToken() on a missing file should be a no-op: %v", err)
	}
	if _, err := os.Stat(DefaultCredentialsPath()); !os.IsNotExist(err) {
		t.Errorf("DeleteToken() must not create the file, stat err = %v", err)
	}
	if err := s.SetToken("", "x"); err == nil {
		t.Error("expected error for empty key")
	}
	if err := s.SetToken("backend", "tok"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetToken("staging", "tok2"); err != nil {
		t.Fatal(err)
	}

	// a second store over the same file sees the tokens
	reopened, err := NewFileCredentialStore(DefaultCredentialsPath())
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := reopened.GetToken("backend"); v != "tok" {
		t.Errorf("GetToken() = %q", v)
	}
	keys, _ := reopened.ListKeys()
	if strings.Join(keys, ",") != "backend,staging" {
		t.Errorf("ListKeys() = %v", keys)
	}
	if err := reopened.DeleteToken("backend"); err != nil {
		t.Fatal(err)
	}
	if err := reopened.DeleteToken("backend"); err != nil {
		t.Errorf("DeleteToken() should be idempotent: %v", err)
	}
	if keys, _ := s.ListKeys(); strings.Join(keys, ",") != "staging" {
		t.Errorf("ListKeys() after delete = %v", keys)
	}

	info, err := os.Stat(DefaultCredentialsPath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestFileCredentialStore_Errors(t *testing.T) {
	dir := withConfigDir(t)
	if _, err := NewFileCredentialStore("/tmp/elsewhere/credentials.yaml"); err == nil {
		t.Error("expected error for path outside config dir")
	}

	path := filepath.Join(dir, "datasettool", "credentials.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("tokens: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileCredentialStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetToken("backend"); err == nil || errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("expected parse error, got %v", err)
	}
	// a broken store is reported, not mistaken for a missing token
	if _, err := ResolveBackendToken("", s, ""); err == nil {
		t.Error("expected ResolveBackendToken() to surface the parse error")
	}
}

type failingStore struct{}

func (failingStore) SetToken(string, string) error { return nil }
func (failingStore) GetToken(string) (string, error) { return "", errors.New("keyring locked") }
func (failingStore) DeleteToken(string) error { return nil }
func (failingStore) ListKeys() ([]string, error) { return nil, nil }

func TestResolveBackendToken(t *testing.T) {
	withConfigDir(t)
	store, err := NewFileCredentialStore("")
	if err != nil {
		t.Fatal(err)
	}
	_ = store.SetToken(BackendCredentialKey, "from-store")
	_ = store.SetToken("staging", "from-staging")
	empty, err := NewFileCredentialStore(filepath.Join(filepath.Dir(DefaultCredentialsPath()), "empty.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		env     string
		config  string
		store   CredentialStore
		key     string
		want    string
		wantErr bool
	}{
		{"env wins", "from-env", "from-config", store, "", "from-env", false},
		{"config next", "", "from-config", store, "", "from-config", false},
		{"store last", "", "", store, "", "from-store", false},
		{"store by key", "", "", store, "staging", "from-staging", false},
		{"unknown key", "", "", store, "prod", "", false},
		{"nothing", "", "", empty, "", "", false},
		{"nil store", "", "", nil, "", "", false},
		{"store failure", "", "", failingStore{}, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(TokenEnvVar, tt.env)
			got, err := ResolveBackendToken(tt.config, tt.store, tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveBackendToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveBackendToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedactToken(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"abc", "***"},
		{"abcdefgh", "abcd***"},
	}
	for _, tt := range tests {
		if got := RedactToken(tt.in); got != tt.want {
			t.Errorf("RedactToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
