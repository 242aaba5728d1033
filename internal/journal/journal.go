// Package journal implements the append-only balance event log used by
// the mailbox ledger for durable recovery. Each balance-changing trade is
// recorded as a signed delta before the in-memory balance is touched;
// replaying the log from zero reconstructs the cumulative balance change.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a single balance change. Delta is in cents, negative for buy
// debits and positive for sell credits.
type Event struct {
	ID    string    `json:"id"`
	Delta int64     `json:"delta"`
	At    time.Time `json:"at"`
}

// Journal is an append-only JSON-lines event log. Append is durable: the
// record is flushed and fsynced before Append returns, so a crash after a
// successful Append never loses the event.
type Journal struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

// Open creates (or reopens) the journal at path, creating parent
// directories as needed. Existing events are preserved; new events are
// appended after them.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{
		path: path,
		f:    f,
		w:    bufio.NewWriter(f),
	}, nil
}

// Append durably records a balance delta. On error the journal's
// in-memory state is unchanged and the caller must not apply the delta.
func (j *Journal) Append(delta int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	ev := Event{
		ID:    uuid.NewString(),
		Delta: delta,
		At:    time.Now().UTC(),
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.w.Write(line); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Replay folds every event's delta over an initial value of zero and
// returns the sum. A torn trailing line (a crash mid-append) stops the
// replay at the last complete event instead of failing. Replay is
// read-only and idempotent.
func (j *Journal) Replay() (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open journal for replay: %w", err)
	}
	defer f.Close()

	var total int64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			// Torn tail from an interrupted append; everything
			// before it is intact.
			break
		}
		total += ev.Delta
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read journal: %w", err)
	}
	return total, nil
}

// Compact rewrites the log as a single snapshot event carrying the given
// cumulative delta, so replay cost stays bounded. The rewrite goes
// through a temp file and rename, so a crash mid-compaction leaves the
// old log intact.
func (j *Journal) Compact(total int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tmp := j.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create compaction file: %w", err)
	}
	ev := Event{ID: uuid.NewString(), Delta: total, At: time.Now().UTC()}
	line, err := json.Marshal(ev)
	if err != nil {
		f.Close()
		return fmt.Errorf("encode snapshot event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot event: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync compaction file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close compaction file: %w", err)
	}

	if err := j.f.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("swap compacted journal: %w", err)
	}
	nf, err := os.OpenFile(j.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reopen journal: %w", err)
	}
	j.f = nf
	j.w = bufio.NewWriter(nf)
	return nil
}

// Close flushes and closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		return err
	}
	return j.f.Close()
}
