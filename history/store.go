// Package history is the shell's history store: an append-only,
// deduplicating log of executed command lines with incremental search
// and a JSONL on-disk format that tolerates a truncated tail.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is one executed command line.
type Entry struct {
	// Index is a monotonic sequence number assigned on append.
	Index int `json:"index"`
	// Text is the literal command line.
	Text string `json:"text"`
	// When is the append timestamp.
	When time.Time `json:"when"`
	// Status is the exit status, backfilled after execution.
	Status *int `json:"status,omitempty"`
}

// Direction selects which way Search walks through history.
type Direction int

const (
	// Backward searches from newer to older entries.
	Backward Direction = iota
	// Forward searches from older to newer entries.
	Forward
)

// record is one line of the on-disk log. Op "cmd" carries a new entry,
// op "exit" backfills the exit status of an earlier one.
type record struct {
	Op     string    `json:"op"`
	Index  int       `json:"index"`
	Text   string    `json:"text,omitempty"`
	When   time.Time `json:"when,omitempty"`
	Status int       `json:"status,omitempty"`
}

// Store holds the ordered history sequence. Entries are immutable once
// appended except for exit-status backfill.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	limit   int

	path string
	f    *os.File // append handle, nil for in-memory stores
}

// NewMemory returns a store without persistence, used in tests and when
// the log file cannot be opened.
func NewMemory(limit int) *Store {
	return &Store{limit: limit}
}

// Open loads the log at path and opens it for incremental append.
// A missing or unreadable log degrades to an empty in-memory history;
// it never fails shell startup.
func Open(path string, limit int) *Store {
	s := &Store{limit: limit, path: path}

	if data, err := os.ReadFile(path); err == nil {
		s.replay(data)
	} else if !os.IsNotExist(err) {
		slog.Warn("history log unreadable, starting empty", "path", path, "error", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		slog.Warn("history dir unavailable, history will not persist", "error", err)
		return s
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		slog.Warn("history log not writable, history will not persist", "path", path, "error", err)
		return s
	}
	s.f = f
	return s
}

// replay rebuilds the in-memory sequence from the on-disk log.
// A malformed trailing record is dropped; malformed records mid-file are
// skipped so one bad line cannot poison the rest.
func (s *Store) replay(data []byte) {
	byIndex := make(map[int]int) // on-disk index -> entries offset

	sc := bufio.NewScanner(strings.NewReader(string(data)))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			// Truncated or corrupt record: drop it and keep going.
			continue
		}
		switch rec.Op {
		case "cmd":
			byIndex[rec.Index] = len(s.entries)
			s.entries = append(s.entries, Entry{Index: rec.Index, Text: rec.Text, When: rec.When})
			if rec.Index >= s.next {
				s.next = rec.Index + 1
			}
		case "exit":
			if i, ok := byIndex[rec.Index]; ok {
				status := rec.Status
				s.entries[i].Status = &status
			}
		}
	}

	if s.limit > 0 && len(s.entries) > s.limit {
		s.entries = s.entries[len(s.entries)-s.limit:]
	}
}

// Append adds text as a new entry and returns it. The append is skipped
// when text is blank or equals the immediately preceding entry's text.
func (s *Store) Append(text string) (Entry, bool) {
	if strings.TrimSpace(text) == "" {
		return Entry{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.entries); n > 0 && s.entries[n-1].Text == text {
		return s.entries[n-1], false
	}

	e := Entry{Index: s.next, Text: text, When: time.Now()}
	s.next++
	s.entries = append(s.entries, e)
	if s.limit > 0 && len(s.entries) > s.limit {
		s.entries = s.entries[len(s.entries)-s.limit:]
	}

	s.writeRecord(record{Op: "cmd", Index: e.Index, Text: e.Text, When: e.When})
	return e, true
}

// RecordExit backfills the exit status of a previously appended entry.
func (s *Store) RecordExit(index, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Index == index {
			st := status
			s.entries[i].Status = &st
			s.writeRecord(record{Op: "exit", Index: index, Status: status})
			return
		}
	}
}

// writeRecord appends one JSONL line. Caller holds the lock.
func (s *Store) writeRecord(rec record) {
	if s.f == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(s.f, "%s\n", data); err != nil {
		slog.Warn("history append failed", "error", err)
	}
}

// Search walks from position `from` in the given direction and returns
// the nearest entry whose text contains query. from is an offset into
// the in-memory sequence; pass Len() to search backward from the end.
func (s *Store) Search(query string, from int, dir Direction) (Entry, bool) {
	if query == "" {
		return Entry{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	switch dir {
	case Backward:
		if from > len(s.entries) {
			from = len(s.entries)
		}
		for i := from - 1; i >= 0; i-- {
			if strings.Contains(s.entries[i].Text, query) {
				return s.entries[i], true
			}
		}
	case Forward:
		if from < 0 {
			from = -1
		}
		for i := from + 1; i < len(s.entries); i++ {
			if strings.Contains(s.entries[i].Text, query) {
				return s.entries[i], true
			}
		}
	}
	return Entry{}, false
}

// Offset returns the in-memory position of the entry with the given
// sequence index, or -1 when it has been trimmed away.
func (s *Store) Offset(index int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, e := range s.entries {
		if e.Index == index {
			return i
		}
	}
	return -1
}

// Len returns the number of in-memory entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// At returns the entry at in-memory position i.
func (s *Store) At(i int) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.entries) {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Recent returns up to n most recent command texts, oldest first.
func (s *Store) Recent(n int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	start := len(s.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(s.entries)-start)
	for _, e := range s.entries[start:] {
		out = append(out, e.Text)
	}
	return out
}

// Texts returns all in-memory command texts, oldest first.
func (s *Store) Texts() []string {
	return s.Recent(s.Len())
}

// Close flushes and closes the append handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
