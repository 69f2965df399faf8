// Package eventlog implements the session's append-only JSONL event sink
// with idempotent, content-hashed event ids.
package eventlog

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"tradesession/internal/domain"
)

// defaultCapacity bounds the in-memory set of recently-seen event ids used
// for duplicate suppression. When exceeded, the oldest half is dropped —
// see Design Notes: "bounded LRU of event_ids; when capacity exceeded,
// retain the most recent half." This is deliberately not a classic
// single-eviction LRU: halving amortizes the prune over many future writes
// instead of paying an eviction on every single insert past capacity.
const defaultCapacity = 10000

// Log is the append-only JSONL event sink at <state_dir>/events.jsonl.
// Writes are append + fsync. A bounded recency set suppresses duplicate
// event ids (same event content, ignoring timestamp) from being appended
// twice.
type Log struct {
	mu       sync.Mutex
	path     string
	logger   domain.Logger
	capacity int

	file *os.File

	seen  map[string]int64 // event_id -> insertion sequence
	order []string         // insertion order of seen ids
	seq   int64
}

// NewLog constructs a Log writing to <dir>/events.jsonl.
func NewLog(dir string, logger domain.Logger) *Log {
	return &Log{
		path:     filepath.Join(dir, "events.jsonl"),
		logger:   logger,
		capacity: defaultCapacity,
		seen:     make(map[string]int64),
	}
}

// Open opens (creating if necessary) the backing file for appends. Must be
// called before Append.
func (l *Log) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// Close closes the backing file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Append writes event to the log unless an event with the same content hash
// (excluding timestamp) has already been appended and is still within the
// recency window. Returns the event_id assigned.
func (l *Log) Append(event domain.Event) (string, error) {
	id, err := ContentHash(event.Name, event.Payload)
	if err != nil {
		return "", err
	}
	event.EventID = id
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.seen[id]; dup {
		return id, nil
	}

	line, err := encodeLine(event)
	if err != nil {
		return "", err
	}

	if l.file != nil {
		if _, err := l.file.Write(line); err != nil {
			return "", err
		}
		if err := l.file.Sync(); err != nil {
			return "", err
		}
	}

	l.remember(id)
	return id, nil
}

func (l *Log) remember(id string) {
	l.seq++
	l.seen[id] = l.seq
	l.order = append(l.order, id)

	if len(l.order) <= l.capacity {
		return
	}

	keepFrom := len(l.order) - l.capacity/2
	dropped := l.order[:keepFrom]
	for _, d := range dropped {
		delete(l.seen, d)
	}
	kept := make([]string, len(l.order)-keepFrom)
	copy(kept, l.order[keepFrom:])
	l.order = kept

	if l.logger != nil {
		l.logger.Debug("event log dedup window pruned", "dropped", len(dropped), "retained", len(l.order))
	}
}

func encodeLine(event domain.Event) ([]byte, error) {
	m := make(map[string]interface{}, len(event.Payload)+3)
	for k, v := range event.Payload {
		m[k] = v
	}
	m["event"] = string(event.Name)
	m["timestamp"] = event.Timestamp.Format(time.RFC3339Nano)
	m["event_id"] = event.EventID

	buf, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}

// ContentHash computes the hex MD5 of the event name and payload, with
// payload keys sorted for a stable encoding. Timestamp is intentionally
// excluded so that repeated writes of logically-identical events collapse
// to the same id.
func ContentHash(name domain.EventName, payload map[string]interface{}) (string, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := md5.New()
	fmt.Fprintf(h, "event=%s;", name)
	for _, k := range keys {
		v, err := json.Marshal(payload[k])
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s=%s;", k, v)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
