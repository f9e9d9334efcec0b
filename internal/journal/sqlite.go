// Package journal keeps an append-only SQLite log of everything the observer was shown
package journal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"market_client/internal/core"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const (
	defaultBuffer = 512
	maxBatch      = 64
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	payload    TEXT    NOT NULL,
	checksum   BLOB    NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_run ON events (run_id, id);
`

// Event kinds
const (
	KindBalance  = "balance"
	KindListing  = "listing"
	KindWishList = "wishlist"
	KindLog      = "log"
	KindState    = "session_state"
)

// Entry is one journaled observer event
type Entry struct {
	ID        int64
	RunID     string
	Kind      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

type record struct {
	kind    string
	payload []byte
	at      time.Time
	// flushed, when set, marks a flush request instead of an event
	flushed chan struct{}
}

// SQLiteJournal is a core.IObserver that persists events on a background writer.
// Observer calls never block: when the queue is full the event is dropped and counted.
type SQLiteJournal struct {
	db      *sql.DB
	runID   string
	logger  core.ILogger
	queue   chan record
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Open creates or opens the journal at path. Events of this process share one run id.
func Open(path string, buffer int, logger core.ILogger) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	db.SetMaxOpenConns(1)

	if buffer <= 0 {
		buffer = defaultBuffer
	}
	j := &SQLiteJournal{
		db:     db,
		runID:  uuid.NewString(),
		logger: logger.WithField("component", "journal"),
		queue:  make(chan record, buffer),
		done:   make(chan struct{}),
	}
	go j.writer()
	j.logger.Info("Journal opened", "path", path, "run_id", j.runID)
	return j, nil
}

// RunID identifies the events written by this process
func (j *SQLiteJournal) RunID() string {
	return j.runID
}

// Dropped returns how many events were discarded because the queue was full
func (j *SQLiteJournal) Dropped() int64 {
	return j.dropped.Load()
}

func (j *SQLiteJournal) enqueue(kind string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		j.logger.Warn("journal event not encodable", "kind", kind, "error", err)
		return
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- record{kind: kind, payload: payload, at: time.Now()}:
	default:
		j.dropped.Add(1)
	}
}

func (j *SQLiteJournal) writer() {
	defer close(j.done)
	for first := range j.queue {
		batch := []record{first}
	fill:
		for len(batch) < maxBatch && batch[len(batch)-1].flushed == nil {
			select {
			case r, ok := <-j.queue:
				if !ok {
					break fill
				}
				batch = append(batch, r)
			default:
				break fill
			}
		}

		var marker chan struct{}
		if last := batch[len(batch)-1]; last.flushed != nil {
			marker = last.flushed
			batch = batch[:len(batch)-1]
		}
		if len(batch) > 0 {
			if err := j.write(batch); err != nil {
				j.logger.Error("journal write failed", "events", len(batch), "error", err)
			}
		}
		if marker != nil {
			close(marker)
		}
	}
}

func (j *SQLiteJournal) write(batch []record) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.Prepare(`INSERT INTO events (run_id, kind, payload, checksum, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range batch {
		sum := sha256.Sum256(r.payload)
		if _, err := stmt.Exec(j.runID, r.kind, string(r.payload), sum[:], r.at.UnixNano()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Recent returns up to limit events of this run, oldest first
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, kind, payload, checksum, created_at FROM
			(SELECT * FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?)
		ORDER BY id ASC`, j.runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			payload  string
			checksum []byte
			created  int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Kind, &payload, &checksum, &created); err != nil {
			return nil, err
		}
		sum := sha256.Sum256([]byte(payload))
		if !bytes.Equal(sum[:], checksum) {
			return nil, fmt.Errorf("journal entry %d: checksum verification failed", e.ID)
		}
		e.Payload = json.RawMessage(payload)
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Flush waits until every event queued before the call has been written
func (j *SQLiteJournal) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return nil
	}
	select {
	case j.queue <- record{flushed: marker}:
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}
	j.mu.RUnlock()

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue, then closes the database
func (j *SQLiteJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	return j.db.Close()
}

// Run closes the journal once ctx is done
func (j *SQLiteJournal) Run(ctx context.Context) error {
	<-ctx.Done()
	return j.Close()
}

func (j *SQLiteJournal) OnBalanceChanged(balance decimal.Decimal) {
	j.enqueue(KindBalance, map[string]decimal.Decimal{"balance": balance})
}

func (j *SQLiteJournal) OnListingChanged(items []core.Item) {
	j.enqueue(KindListing, items)
}

func (j *SQLiteJournal) OnWishListChanged(wishes []core.ItemWish) {
	j.enqueue(KindWishList, wishes)
}

func (j *SQLiteJournal) OnLogEvent(event core.LogEvent) {
	j.enqueue(KindLog, event)
}

func (j *SQLiteJournal) OnSessionStateChanged(state core.SessionState) {
	j.enqueue(KindState, map[string]string{"state": state.String()})
}

var _ core.IObserver = (*SQLiteJournal)(nil)
