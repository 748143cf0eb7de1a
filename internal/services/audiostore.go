package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// AudioStore keeps synthesized MP3s on local disk under one directory.
type AudioStore struct {
	dir    string
	logger *log.Logger
}

func NewAudioStore(dir string, logger *log.Logger) (*AudioStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	return &AudioStore{dir: dir, logger: logger}, nil
}

// Save writes one generation result. The intent version is part of the
// name so a regeneration never overwrites audio an armed wake may still
// point at.
func (s *AudioStore) Save(intentID uuid.UUID, version int, audio []byte) (string, error) {
	name := fmt.Sprintf("intent_%s_v%d.mp3", intentID, version)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	s.logger.Debug("audio saved", "path", path, "bytes", len(audio))
	return path, nil
}

// Open returns the stored file for serving. The name must be a bare
// file name; anything with a path separator is rejected.
func (s *AudioStore) Open(name string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid audio name %q", name)
	}
	return os.Open(filepath.Join(s.dir, name))
}

// Remove deletes superseded audio. A missing file is not an error.
func (s *AudioStore) Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
