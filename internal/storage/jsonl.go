package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"poolfund/internal/model"
)

// JsonlRecorder appends fund activity to a JSONL file, one typed entry per line.
type JsonlRecorder struct {
	path string
	mu   sync.Mutex
}

func NewJsonlRecorder(path string) *JsonlRecorder {
	return &JsonlRecorder{path: path}
}

type jsonlEntry struct {
	Kind string      `json:"kind"`
	Fund string      `json:"fund,omitempty"`
	Data interface{} `json:"data"`
}

func (s *JsonlRecorder) PutProposals(ctx context.Context, fund string, proposals []model.Proposal) error {
	entries := make([]jsonlEntry, 0, len(proposals))
	for _, p := range proposals {
		entries = append(entries, jsonlEntry{Kind: "proposal", Fund: fund, Data: p})
	}
	return s.append(entries)
}

func (s *JsonlRecorder) PutPayouts(ctx context.Context, fund string, payouts []model.Payout) error {
	entries := make([]jsonlEntry, 0, len(payouts))
	for _, p := range payouts {
		entries = append(entries, jsonlEntry{Kind: "payout", Fund: fund, Data: p})
	}
	return s.append(entries)
}

func (s *JsonlRecorder) PutNavSnapshot(ctx context.Context, snapshot model.NavSnapshot) error {
	return s.append([]jsonlEntry{{Kind: "nav", Fund: snapshot.FundAddress, Data: snapshot}})
}

func (s *JsonlRecorder) append(entries []jsonlEntry) error {
	if s == nil || s.path == "" || len(entries) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal %s entry: %w", entry.Kind, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write %s entry: %w", entry.Kind, err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
