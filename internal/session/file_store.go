package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const sessionsFile = "sessions.json"

var errCorruptDocument = errors.New("failed to parse sessions")

// fileDocument is the on-disk layout of sessions.json.
type fileDocument struct {
	Version  int               `json:"version"`
	Sessions map[string]string `json:"sessions"`
}

// FileStore persists the token for one origin in a JSON document on the
// local filesystem. Several origins can share the same document.
type FileStore struct {
	baseDir string
	origin  string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store for origin.
// If baseDir is empty, uses ~/.userdesk/
func NewFileStore(baseDir, origin string) (*FileStore, error) {
	if origin == "" {
		return nil, fmt.Errorf("origin is required")
	}

	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".userdesk")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s := &FileStore{baseDir: baseDir, origin: NormalizeOrigin(origin)}

	if err := s.ensureDocument(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Str("origin", s.origin).Msg("file session store initialized")

	return s, nil
}

// Path returns the location of the sessions document.
func (s *FileStore) Path() string {
	return filepath.Join(s.baseDir, sessionsFile)
}

func (s *FileStore) Get(_ context.Context) (string, error) {
	doc, err := s.load()
	if err != nil {
		return "", err
	}

	token, ok := doc.Sessions[s.origin]
	if !ok || token == "" {
		return "", ErrNoToken
	}

	return token, nil
}

func (s *FileStore) Set(_ context.Context, token string) error {
	doc, _, err := s.loadForWrite()
	if err != nil {
		return err
	}

	doc.Sessions[s.origin] = token

	return s.save(doc)
}

// Clear removes the origin's token. A corrupt document is replaced with an
// empty one so logout always leaves the slot empty.
func (s *FileStore) Clear(_ context.Context) error {
	doc, replaced, err := s.loadForWrite()
	if err != nil {
		return err
	}

	if _, ok := doc.Sessions[s.origin]; !ok && !replaced {
		return nil
	}

	delete(doc.Sessions, s.origin)

	return s.save(doc)
}

func (s *FileStore) ensureDocument() error {
	if _, err := os.Stat(s.Path()); err == nil {
		return nil
	}

	return s.save(emptyDocument())
}

func emptyDocument() *fileDocument {
	return &fileDocument{
		Version:  1,
		Sessions: make(map[string]string),
	}
}

// load reads the document. A missing document is an empty one.
func (s *FileStore) load() (*fileDocument, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return emptyDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	doc := emptyDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptDocument, err)
	}

	if doc.Sessions == nil {
		doc.Sessions = make(map[string]string)
	}

	return doc, nil
}

// loadForWrite is load for Set and Clear, which start over from an empty
// document when the current one cannot be parsed.
func (s *FileStore) loadForWrite() (*fileDocument, bool, error) {
	doc, err := s.load()
	if errors.Is(err, errCorruptDocument) {
		log.Warn().Err(err).Str("path", s.Path()).Msg("replacing corrupt sessions document")
		return emptyDocument(), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, false, nil
}

// save writes the document atomically.
func (s *FileStore) save(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	if err := os.MkdirAll(s.baseDir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	path := s.Path()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save sessions: %w", err)
	}

	return nil
}
