package store

// Package store provides the persistence backends behind the conversation
// Store and link Repository contracts: a JSON/YAML snapshot format for
// exported data and a SQLite database for durable local storage.

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vmanoilov/bettergpt/pkg/conversation"
	"github.com/vmanoilov/bettergpt/pkg/links"
)

// Snapshot is the file representation of a full conversation set: the shape
// produced by the export feature and consumed by the CLI.
type Snapshot struct {
	Conversations []*conversation.Conversation  `json:"conversations" yaml:"conversations"`
	Links         []*links.ConversationLink     `json:"links,omitempty" yaml:"links,omitempty"`
	Configs       []*conversation.ContextConfig `json:"contextConfigs,omitempty" yaml:"contextConfigs,omitempty"`
}

// LoadSnapshot reads a snapshot from a .json or .yaml/.yml file.
func LoadSnapshot(filename string) (*Snapshot, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var snapshot Snapshot
	if strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml") {
		err = yaml.NewDecoder(f).Decode(&snapshot)
	} else {
		err = json.NewDecoder(f).Decode(&snapshot)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding snapshot %s", filename)
	}
	return &snapshot, nil
}

// SaveSnapshot writes a snapshot to a .json or .yaml/.yml file.
func SaveSnapshot(filename string, snapshot *Snapshot) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml") {
		encoder := yaml.NewEncoder(f)
		defer func() {
			_ = encoder.Close()
		}()
		return encoder.Encode(snapshot)
	}

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snapshot)
}

// Materialize loads the snapshot into fresh in-memory store and repository
// instances. Links with types outside the closed set are rejected.
func (s *Snapshot) Materialize(ctx context.Context) (*conversation.MemoryStore, *links.MemoryRepository, error) {
	memStore := conversation.NewMemoryStore()
	repo := links.NewMemoryRepository()

	for _, conv := range s.Conversations {
		if err := memStore.Save(ctx, conv); err != nil {
			return nil, nil, err
		}
	}
	for _, cfg := range s.Configs {
		if err := memStore.SaveContextConfig(ctx, cfg); err != nil {
			return nil, nil, err
		}
	}
	for _, link := range s.Links {
		if err := repo.Save(ctx, link); err != nil {
			return nil, nil, err
		}
	}
	return memStore, repo, nil
}
