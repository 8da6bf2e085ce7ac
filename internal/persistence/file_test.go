package persistence_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-lab/owd/internal/persistence"
)

// A struct that can be marshalled to JSON.
type MarshallableStruct struct {
	Test string
}

func TestWriteDataFile(t *testing.T) {
	dir := t.TempDir()
	testdata := MarshallableStruct{Test: "foo"}
	df, err := persistence.WriteDataFile(dir, "owd1", "server", "fake-uuid", testdata)
	if err != nil {
		t.Fatalf("cannot create test datafile: %v", err)
	}

	if df.Prefix != dir || df.Datatype != "owd1" ||
		df.Subtest != "server" || df.UUID != "fake-uuid" {
		t.Fatalf("invalid field values in DataFile")
	}

	// Check the generated path.
	prefix := filepath.Join(dir, "owd1", time.Now().UTC().Format("2006/01/02"), "owd1-server-")
	if !strings.HasPrefix(df.Path, prefix) ||
		!strings.HasSuffix(df.Path, "fake-uuid.json") {
		t.Errorf("invalid output path: %s", df.Path)
	}
	// Check the file contents.
	content, err := os.ReadFile(df.Path)
	if err != nil {
		t.Errorf("error while reading file content: %v", err)
	}
	if string(content) != `{"Test":"foo"}` {
		t.Errorf("unexpected file content: %s", string(content))
	}
	if df.Size != len(content) {
		t.Errorf("invalid Size: %d (should be %d)", df.Size, len(content))
	}
}

func TestWriteDataFile_Errors(t *testing.T) {
	dir := t.TempDir()
	// Values that cannot be marshalled.
	if _, err := persistence.WriteDataFile(dir, "owd1", "server", "id", make(chan int)); err == nil {
		t.Errorf("WriteDataFile() expected marshal error, got nil")
	}
	// A regular file where the datatype directory should be.
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := persistence.WriteDataFile(dir, "blocked", "server", "id", 1); err == nil {
		t.Errorf("WriteDataFile() expected mkdir error, got nil")
	}
}
