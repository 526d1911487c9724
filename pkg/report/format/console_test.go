package format

import (
	"bytes"
	"strings"
	"testing"

	"github.com/greg-hellings/datasettool/pkg/dataset"
)

func images(ids ...string) []dataset.Image {
	out := make([]dataset.Image, len(ids))
	for i, id := range ids {
		out[i] = dataset.Image{UUID: id}
	}
	return out
}

// helper to build a sample snapshot
func sampleSnapshot(info dataset.PanelInfo) *dataset.Snapshot {
	var r1 dataset.Component
	r1.Set("white", dataset.NewInstance(true).
		WithBucket(dataset.TrainPass, images("a", "b", "c")...).
		WithBucket(dataset.ValNG, images("n")...))
	r1.Set("red", dataset.NewInstance(false))

	snap := &dataset.Snapshot{ExportID: "exp-42", Info: info}
	snap.Set("R1", r1)
	snap.Set("EMPTY", dataset.Component{})
	return snap
}

func TestRenderSnapshot(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false // deterministic output for assertions

	info := dataset.PanelInfo{TrainPass: 3, TrainNG: 0, ValPass: 2, ValNG: 1}
	if err := f.RenderSnapshot(sampleSnapshot(info), &buf); err != nil {
		t.Fatalf("RenderSnapshot returned error: %v", err)
	}
	out := buf.String()

	expectContains(t, out, "COMPONENT", "component header missing")
	expectContains(t, out, "TRAINPASS", "bucket header missing")
	expectContains(t, out, "R1", "component R1 missing")
	expectContains(t, out, "white", "light white missing")
	expectContains(t, out, "red", "light red missing")
	expectContains(t, out, "EMPTY", "component without lights missing")
	expectContains(t, out, "✓", "ready marker missing")
	expectContains(t, out, "✗", "not-ready marker missing")
	expectContains(t, out, "Export: exp-42 (2 components)", "export line mismatch")
	expectContains(t, out, "Panel totals:", "totals header missing")
	expectContains(t, out, "Convert: blocked", "convert gate should be blocked with a zero count")

	if strings.Contains(out, "\x1b[") {
		t.Errorf("unexpected ANSI color sequences found when colors disabled")
	}
}

func TestRenderTotalsReady(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false

	if err := f.RenderTotals(dataset.PanelInfo{TrainPass: 1, TrainNG: 1, ValPass: 1, ValNG: 1}, &buf); err != nil {
		t.Fatal(err)
	}
	expectContains(t, buf.String(), "Convert: ready", "convert gate should be open")
}

func TestRenderTotalsGrid(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false

	info := dataset.PanelInfo{TrainPass: 11, TrainNG: 22, ValPass: 33, ValNG: 44}
	if err := f.RenderTotals(info, &buf); err != nil {
		t.Fatal(err)
	}

	var trainLine, valLine string
	for _, line := range strings.Split(buf.String(), "\n") {
		switch {
		case strings.Contains(line, "Train"):
			trainLine = line
		case strings.Contains(line, "Val"):
			valLine = line
		}
	}
	if !strings.Contains(trainLine, "11") || !strings.Contains(trainLine, "22") {
		t.Errorf("train row = %q, want pass 11 and ng 22", trainLine)
	}
	if !strings.Contains(valLine, "33") || !strings.Contains(valLine, "44") {
		t.Errorf("val row = %q, want pass 33 and ng 44", valLine)
	}
}

func TestRenderTotalsColorsZeroCounts(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = true

	if err := f.RenderTotals(dataset.PanelInfo{TrainPass: 5}, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "\x1b[") {
		t.Errorf("expected ANSI color sequences but none found")
	}
	if !strings.Contains(stripANSI(out), "Convert: blocked") {
		t.Errorf("expected blocked status in output (stripANSI)")
	}
}

func TestRenderInstance(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false

	in := dataset.NewInstance(true).
		WithBucket(dataset.TrainPass, images("a", "b")...).
		WithBucket(dataset.Delete, images("zz")...)
	if err := f.RenderInstance(in, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	expectContains(t, out, "a, b", "train pass images missing")
	expectContains(t, out, "zz", "deleted image missing")
	expectContains(t, out, "Ready: yes", "ready line mismatch")
	expectContains(t, out, "Warnings:", "warnings header missing")
	expectContains(t, out, "Val: pass + ng need at least one", "val warning missing")
	expectContains(t, out, "Golden: need one", "golden warning missing")
}

func TestRenderInstanceTruncatesImages(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false
	f.MaxImagesColWidth = 8

	in := dataset.NewInstance(false).WithBucket(dataset.TrainPass, images("image-0001", "image-0002")...)
	if err := f.RenderInstance(in, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "image-0002") {
		t.Errorf("expected long image list to be truncated:\n%s", out)
	}
	expectContains(t, out, "…", "ellipsis missing")
}

func TestRenderSnapshotNil(t *testing.T) {
	var buf bytes.Buffer
	if err := NewConsoleFormatter().RenderSnapshot(nil, &buf); err == nil {
		t.Fatalf("expected error rendering nil snapshot, got nil")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefgh", 4, "abc…"},
		{"ångström", 3, "ån…"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func expectContains(t *testing.T, s, substr, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("%s: expected to contain %q\nFull output:\n%s", msg, substr, s)
	}
}

// stripANSI removes ANSI escape sequences for simplified checks.
func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0x1b {
			inEsc = true
			continue
		}
		if inEsc {
			// ESC sequences end with 'm' or a letter; simplistic but adequate here
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				inEsc = false
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
