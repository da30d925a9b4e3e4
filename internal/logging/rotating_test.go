package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestRotatingFile_RotatesAndKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "authcore.log")
	rf, err := OpenRotatingFile(path, 10, 2)
	if err != nil {
		t.Fatalf("OpenRotatingFile: %v", err)
	}
	defer rf.Close()

	for _, line := range []string{"first\n", "second\n", "third\n", "fourth\n"} {
		if _, err := rf.Write([]byte(line)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if got := readFile(t, path); got != "fourth\n" {
		t.Errorf("current = %q", got)
	}
	if got := readFile(t, path+".1"); got != "third\n" {
		t.Errorf("backup 1 = %q", got)
	}
	if got := readFile(t, path+".2"); got != "second\n" {
		t.Errorf("backup 2 = %q", got)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("backup 3 should not exist: %v", err)
	}
}

func TestRotatingFile_OversizedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.log")
	rf, err := OpenRotatingFile(path, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()
	long := strings.Repeat("x", 20)
	if _, err := rf.Write([]byte(long)); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, path); got != long {
		t.Errorf("got %q", got)
	}
}

func TestRotatingFile_WriteAfterClose(t *testing.T) {
	rf, err := OpenRotatingFile(filepath.Join(t.TempDir(), "a.log"), 100, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := rf.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := rf.Write([]byte("x")); err != os.ErrClosed {
		t.Errorf("err = %v, want os.ErrClosed", err)
	}
}

func TestOpenRotatingFile_Validation(t *testing.T) {
	if _, err := OpenRotatingFile("", 10, 1); err == nil {
		t.Error("empty path should fail")
	}
	if _, err := OpenRotatingFile(filepath.Join(t.TempDir(), "a.log"), 0, 1); err == nil {
		t.Error("zero size should fail")
	}
}
