package hasher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileMatchesBytesAndIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.txt")
	content := []byte("[1/2/24, 9:15 PM] Alex: where are you\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	first, err := File(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := File(path)
	if err != nil {
		t.Fatalf("hash again: %v", err)
	}
	if first != second {
		t.Fatalf("stability: %s != %s", first, second)
	}
	if first != Bytes(content) {
		t.Fatalf("file vs bytes: %s != %s", first, Bytes(content))
	}
	if len(first) != Size || strings.ToLower(first) != first {
		t.Fatalf("format: got=%q", first)
	}
}

func TestDifferentContentDiffers(t *testing.T) {
	a := Bytes([]byte("a"))
	b := Bytes([]byte("b"))
	if a == b {
		t.Fatalf("collision on distinct inputs")
	}
	got, err := Reader(strings.NewReader("a"))
	if err != nil || got != a {
		t.Fatalf("reader: want=%s got=%s err=%v", a, got, err)
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
