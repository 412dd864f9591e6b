package journal

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/walletstream/internal/wire"
)

// Schema creates the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS realtime_events (
	event_id    UUID PRIMARY KEY,
	topic       TEXT NOT NULL,
	type        TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	server_ts   TEXT NOT NULL DEFAULT '',
	payload     JSONB,
	received_at TIMESTAMPTZ NOT NULL
)`

const insertEvent = `
	INSERT INTO realtime_events (event_id, topic, type, user_id, server_ts, payload, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (event_id) DO NOTHING
`

// eventNamespace scopes deterministic event ids.
var eventNamespace = uuid.MustParse("6f1c1d52-4f0e-4a37-9d0c-8a1f3e0b7c21")

// DB is the subset of *pgxpool.Pool used by the Writer.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config configures a Writer.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits before flush
	BufferSize    int           // Pending envelopes before Record drops
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// Metrics contains writer counters.
type Metrics struct {
	Received  int64
	Dropped   int64
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// entry is one recorded envelope.
type entry struct {
	topic      wire.Topic
	env        wire.Envelope
	receivedAt time.Time
}

// eventRow is one realtime_events row.
type eventRow struct {
	EventID    uuid.UUID
	Topic      string
	Type       string
	UserID     string
	ServerTs   string
	Payload    []byte
	ReceivedAt time.Time
}

// Writer batches envelopes into realtime_events.
type Writer struct {
	cfg    Config
	logger *slog.Logger
	db     DB

	input chan entry

	// Batching
	batch   []eventRow
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewWriter creates a Writer. Call Start before recording.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan entry, cfg.BufferSize),
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the journal table if needed.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	_, err := w.db.Exec(ctx, Schema)
	return err
}

// Record enqueues an envelope. It never blocks; a full buffer drops it.
func (w *Writer) Record(topic wire.Topic, env wire.Envelope, receivedAt time.Time) {
	select {
	case w.input <- entry{topic: topic, env: env, receivedAt: receivedAt}:
		w.batchMu.Lock()
		w.metrics.Received++
		w.batchMu.Unlock()
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		w.logger.Warn("journal buffer full, dropping event",
			"topic", topic,
			"type", env.Type,
		)
	}
}

// Start begins consuming envelopes and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains buffered envelopes and flushes them.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.cancel != nil {
		w.cancel()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		return ctx.Err()
	}

	// Drain what is still buffered
drain:
	for {
		select {
		case e := <-w.input:
			w.add(e)
		default:
			break drain
		}
	}

	// Final flush
	w.flush(ctx)

	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case e := <-w.input:
			if w.add(e) {
				w.flush(w.ctx)
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends a row and reports whether the batch is full.
func (w *Writer) add(e entry) bool {
	row := transform(e)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts a recorded envelope to a row.
func transform(e entry) eventRow {
	var payload []byte
	if len(e.env.Data) > 0 {
		payload = []byte(e.env.Data)
	}
	return eventRow{
		EventID:    EventID(e.topic, e.env),
		Topic:      string(e.topic),
		Type:       e.env.Type,
		UserID:     e.env.UserID,
		ServerTs:   e.env.Timestamp,
		Payload:    payload,
		ReceivedAt: e.receivedAt,
	}
}

// EventID identifies an envelope. Envelopes with a server timestamp get a
// name-based id so the same frame received twice maps to one row; others
// get a random id.
func EventID(topic wire.Topic, env wire.Envelope) uuid.UUID {
	if env.Timestamp == "" {
		return uuid.New()
	}
	name := strings.Join([]string{
		string(topic),
		env.Type,
		env.UserID,
		env.Timestamp,
		env.ConnectionID,
		string(env.Data),
	}, "\x00")
	return uuid.NewSHA1(eventNamespace, []byte(name))
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("journal insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed journal events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertEvent,
			r.EventID, r.Topic, r.Type, r.UserID, r.ServerTs, r.Payload, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
