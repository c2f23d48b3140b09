// Package conversations persists chat history as one JSON file per
// conversation in a user-scoped directory.
package conversations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cogitoproject/cogito/pkg/config"
	"github.com/cogitoproject/cogito/pkg/llms"
)

// Conversation is the on-disk record. IDs are small integers assigned at
// creation; the filename is "<id>.json".
type Conversation struct {
	ID           int            `json:"id"`
	Name         string         `json:"name"`
	Conversation []llms.Message `json:"conversation"`
}

// Store manages the conversation directory. It is single-process: the CLI
// owns the directory for the lifetime of a command.
type Store struct {
	dir string
}

func NewStoreFromConfig(cfg *config.ConversationsConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}
	return &Store{dir: cfg.Dir}, nil
}

func (s *Store) path(id int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json", id))
}

// List returns all conversations sorted by id. Unreadable files are skipped.
func (s *Store) List() ([]Conversation, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversations directory: %w", err)
	}

	var all []Conversation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.load(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		all = append(all, *conv)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

// Get loads one conversation by id.
func (s *Store) Get(id int) (*Conversation, error) {
	conv, err := s.load(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("conversation %d: %w", id, err)
	}
	return conv, nil
}

// Create allocates the next id and writes an empty conversation.
func (s *Store) Create(name string) (*Conversation, error) {
	existing, err := s.List()
	if err != nil {
		return nil, err
	}

	next := 1
	for _, conv := range existing {
		if conv.ID >= next {
			next = conv.ID + 1
		}
	}

	conv := &Conversation{
		ID:           next,
		Name:         name,
		Conversation: []llms.Message{},
	}
	if err := s.Save(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Save writes the conversation atomically: temp file, then rename.
func (s *Store) Save(conv *Conversation) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode conversation %d: %w", conv.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf(".%d-*.json", conv.ID))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write conversation %d: %w", conv.ID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path(conv.ID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to store conversation %d: %w", conv.ID, err)
	}
	return nil
}

// Delete removes one conversation. Deleting a missing id is an error.
func (s *Store) Delete(id int) error {
	if err := os.Remove(s.path(id)); err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", id, err)
	}
	return nil
}

func (s *Store) load(path string) (*Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("corrupt conversation file %s: %w", filepath.Base(path), err)
	}
	if conv.Conversation == nil {
		conv.Conversation = []llms.Message{}
	}
	return &conv, nil
}
