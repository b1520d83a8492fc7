package fs

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	gw, err := NewGateway(t.TempDir(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw
}

func TestWriteFileReportsCreateThenWrite(t *testing.T) {
	gw := newTestGateway(t)

	path, op, err := gw.WriteFile("morning.json", []byte("{}"))
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if op != OperationCreate {
		t.Fatalf("first op=%s want=%s", op, OperationCreate)
	}
	if filepath.Dir(path) != gw.Root() {
		t.Fatalf("written outside root: %s", path)
	}
	if _, op, err = gw.WriteFile("./morning.json", []byte(`{"name":"x"}`)); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if op != OperationWrite {
		t.Fatalf("second op=%s want=%s", op, OperationWrite)
	}
	got, err := gw.ReadFile("morning.json")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != `{"name":"x"}` {
		t.Fatalf("content=%s", got)
	}
}

func TestWriteFileCreatesSubdirectories(t *testing.T) {
	gw := newTestGateway(t)
	path, _, err := gw.WriteFile("nested/dir/flow.json", []byte("{}"))
	if err != nil {
		t.Fatalf("write nested: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat nested file: %v", err)
	}
}

func TestRejectsPathsOutsideRoot(t *testing.T) {
	gw := newTestGateway(t)
	for _, p := range []string{"../escape.json", "a/../../escape.json", "/etc/passwd", "..", ""} {
		t.Run(p, func(t *testing.T) {
			if _, _, err := gw.WriteFile(p, []byte("x")); err == nil {
				t.Fatalf("write %q succeeded", p)
			}
		})
	}
	if _, err := gw.ReadFile("../x"); !errors.Is(err, ErrPathEscapesRoot) {
		t.Fatalf("read escape err=%v", err)
	}
}
