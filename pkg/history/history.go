// Package history persists a local record of executed swaps.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const DefaultStorageFileName = ".evm-swap-history.json"

// Record is one settled or failed swap execution.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	FromSymbol string    `json:"from_symbol"`
	ToSymbol   string    `json:"to_symbol"`
	AmountIn   string    `json:"amount_in"`
	AmountOut  string    `json:"amount_out,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
}

// Store persists swap records as a JSON file.
type Store struct {
	filePath string
	mu       sync.RWMutex
	records  []Record
}

type fileFormat struct {
	Records []Record `json:"records"`
}

// NewStore opens (or lazily creates) the history file.
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStorageFileName)
	}

	s := &Store{filePath: filePath}
	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}
	s.records = f.Records
	return nil
}

// Append adds a record and writes the file.
func (s *Store) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
	data, err := json.MarshalIndent(fileFormat{Records: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// All returns the stored records, newest last.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
