package services

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

func TestAudioStoreSaveAndOpen(t *testing.T) {
	store, err := NewAudioStore(t.TempDir(), log.New(io.Discard))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	intentID := uuid.New()
	path, err := store.Save(intentID, 3, []byte("mp3-bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	wantName := fmt.Sprintf("intent_%s_v3.mp3", intentID)
	if !strings.HasSuffix(path, wantName) {
		t.Fatalf("path %q does not end in %q", path, wantName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Fatalf("got %q", data)
	}

	f, err := store.Open(wantName)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.Close()
}

func TestAudioStoreOpenRejectsPaths(t *testing.T) {
	store, err := NewAudioStore(t.TempDir(), log.New(io.Discard))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for _, name := range []string{"", "../secrets.mp3", "a/b.mp3"} {
		if _, err := store.Open(name); err == nil {
			t.Fatalf("expected rejection for %q", name)
		}
	}
}

func TestAudioStoreRemoveMissingFile(t *testing.T) {
	store, err := NewAudioStore(t.TempDir(), log.New(io.Discard))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.Remove("/nonexistent/never.mp3"); err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
}
