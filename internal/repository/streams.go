package repository

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStreamNotFound is returned when no stream has the requested ID.
var ErrStreamNotFound = errors.New("stream not found")

// StreamRecord describes one archived stream.
type StreamRecord struct {
	ID           string
	Name         string
	Backend      string
	Config       codec.Config
	Packets      int64
	PayloadBytes int64
	BlobKey      string
	CreatedAt    time.Time
}

type StreamPersister interface {
	Save(ctx context.Context, record StreamRecord) error
}

type StreamCatalog interface {
	StreamPersister
	Get(ctx context.Context, id string) (StreamRecord, error)
	List(ctx context.Context, limit int) ([]StreamRecord, error)
	Delete(ctx context.Context, id string) error
}

type PostgresStreamRepository struct {
	db *pgxpool.Pool
}

func NewPostgresStreamRepository(db *pgxpool.Pool) *PostgresStreamRepository {
	return &PostgresStreamRepository{db: db}
}

func StreamToRowParams(record StreamRecord) []any {
	return []any{
		record.ID,
		record.Name,
		record.Backend,
		record.Config.SampleRate,
		record.Config.Channels,
		record.Config.FrameDuration.Microseconds(),
		record.Config.Bitrate,
		record.Config.VBR,
		record.Config.Application.String(),
		record.Packets,
		record.PayloadBytes,
		record.BlobKey,
	}
}

const streamColumns = `id, stream_name, backend, sample_rate, channels, frame_duration_us,
	bitrate, vbr, application, packets, payload_bytes, blob_key, created_at`

func (r *PostgresStreamRepository) Save(ctx context.Context, record StreamRecord) error {
	const query = `
	INSERT INTO streams (id, stream_name, backend, sample_rate, channels, frame_duration_us,
		bitrate, vbr, application, packets, payload_bytes, blob_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		stream_name = EXCLUDED.stream_name,
		packets = EXCLUDED.packets,
		payload_bytes = EXCLUDED.payload_bytes
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("Failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, query, StreamToRowParams(record)...); err != nil {
		return fmt.Errorf("failed to execute stream query: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanStream(row pgx.Row) (StreamRecord, error) {
	var (
		rec        StreamRecord
		durationUS int64
		app        string
	)
	err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Backend,
		&rec.Config.SampleRate,
		&rec.Config.Channels,
		&durationUS,
		&rec.Config.Bitrate,
		&rec.Config.VBR,
		&app,
		&rec.Packets,
		&rec.PayloadBytes,
		&rec.BlobKey,
		&rec.CreatedAt,
	)
	if err != nil {
		return StreamRecord{}, err
	}
	rec.Config.FrameDuration = time.Duration(durationUS) * time.Microsecond
	if rec.Config.Application, err = codec.ParseApplication(app); err != nil {
		return StreamRecord{}, fmt.Errorf("stream %s: %w", rec.ID, err)
	}
	return rec, nil
}

func (r *PostgresStreamRepository) Get(ctx context.Context, id string) (StreamRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+streamColumns+` FROM streams WHERE id = $1`, id)
	rec, err := scanStream(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StreamRecord{}, fmt.Errorf("stream %s: %w", id, ErrStreamNotFound)
	}
	if err != nil {
		return StreamRecord{}, fmt.Errorf("failed to get stream %s: %w", id, err)
	}
	return rec, nil
}

// List returns up to limit streams, newest first.
func (r *PostgresStreamRepository) List(ctx context.Context, limit int) ([]StreamRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+streamColumns+` FROM streams ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	defer rows.Close()

	var records []StreamRecord
	for rows.Next() {
		rec, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stream: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	return records, nil
}

func (r *PostgresStreamRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM streams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stream %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stream %s: %w", id, ErrStreamNotFound)
	}
	return nil
}

var _ StreamCatalog = (*PostgresStreamRepository)(nil)

// MemoryStreamRepository is a StreamCatalog for tests and single-process use.
type MemoryStreamRepository struct {
	mu      sync.RWMutex
	records map[string]StreamRecord
	now     func() time.Time
}

func NewMemoryStreamRepository() *MemoryStreamRepository {
	return &MemoryStreamRepository{
		records: make(map[string]StreamRecord),
		now:     time.Now,
	}
}

func (r *MemoryStreamRepository) Save(ctx context.Context, record StreamRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[record.ID]; ok {
		record.CreatedAt = existing.CreatedAt
	} else if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now()
	}
	r.records[record.ID] = record
	return nil
}

func (r *MemoryStreamRepository) Get(ctx context.Context, id string) (StreamRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return StreamRecord{}, fmt.Errorf("stream %s: %w", id, ErrStreamNotFound)
	}
	return rec, nil
}

func (r *MemoryStreamRepository) List(ctx context.Context, limit int) ([]StreamRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]StreamRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b StreamRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit >= 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *MemoryStreamRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return fmt.Errorf("stream %s: %w", id, ErrStreamNotFound)
	}
	delete(r.records, id)
	return nil
}

var _ StreamCatalog = (*MemoryStreamRepository)(nil)
