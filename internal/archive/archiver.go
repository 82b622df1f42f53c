package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askdb/askdb/internal/assistant"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	// MaxBuffered bounds memory while the store is unreachable; the oldest
	// transcripts are dropped first.
	MaxBuffered int
}

// Archiver buffers finished responses and writes them to object storage as
// parquet batches, either when a batch fills up or on every flush tick.
type Archiver struct {
	Store  storage.ObjectStore
	Config Config
	Logger *slog.Logger
	Clock  func() time.Time

	mu       sync.Mutex
	buffer   []Transcript
	dropped  int
	flushReq chan struct{}
	once     sync.Once
}

func New(store storage.ObjectStore, cfg Config, logger *slog.Logger) (*Archiver, error) {
	if store == nil {
		return nil, errors.New("archive object store is required")
	}
	a := &Archiver{Store: store, Config: cfg, Logger: logger}
	a.ensureDefaults()
	return a, nil
}

// Record satisfies assistant.TranscriptSink.
func (a *Archiver) Record(_ context.Context, response assistant.Response, model llm.Info) {
	a.ensureDefaults()
	row := transcriptFromResponse(response, model)

	a.mu.Lock()
	a.buffer = append(a.buffer, row)
	if over := len(a.buffer) - a.Config.MaxBuffered; over > 0 {
		a.buffer = append([]Transcript(nil), a.buffer[over:]...)
		a.dropped += over
	}
	full := len(a.buffer) >= a.Config.BatchSize
	a.mu.Unlock()

	if full {
		select {
		case a.flushReq <- struct{}{}:
		default:
		}
	}
}

func (a *Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

func (a *Archiver) Run(ctx context.Context) error {
	a.ensureDefaults()

	ticker := time.NewTicker(a.Config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			err := a.FlushOnce(shutdownCtx)
			cancel()
			if err != nil && a.Logger != nil {
				a.Logger.Error("final transcript flush failed", slog.Any("error", err))
			}
			return nil
		case <-ticker.C:
		case <-a.flushReq:
		}
		if err := a.FlushOnce(ctx); err != nil && a.Logger != nil {
			a.Logger.ErrorContext(ctx, "transcript flush failed", slog.Any("error", err))
		}
	}
}

// FlushOnce writes everything buffered so far as a single object. On failure
// the transcripts go back to the front of the buffer for the next attempt.
func (a *Archiver) FlushOnce(ctx context.Context) error {
	a.ensureDefaults()

	a.mu.Lock()
	batch := a.buffer
	a.buffer = nil
	dropped := a.dropped
	a.dropped = 0
	a.mu.Unlock()

	if dropped > 0 && a.Logger != nil {
		a.Logger.WarnContext(ctx, "transcript buffer overflowed", slog.Int("dropped", dropped))
	}
	if len(batch) == 0 {
		return nil
	}

	key, err := a.writeBatch(ctx, batch)
	observability.ObserveArchiveFlush(len(batch), err)
	if err != nil {
		a.requeue(batch)
		return err
	}

	if a.Logger != nil {
		a.Logger.InfoContext(ctx, "archived transcripts",
			slog.Int("transcript_count", len(batch)),
			slog.String("object_path", key),
		)
	}
	return nil
}

func (a *Archiver) writeBatch(ctx context.Context, batch []Transcript) (string, error) {
	data, err := EncodeTranscripts(batch)
	if err != nil {
		return "", fmt.Errorf("encode transcripts to parquet: %w", err)
	}
	batchID := uuid.NewString()
	key, err := storage.BuildTranscriptPath(a.Clock(), batchID)
	if err != nil {
		return "", fmt.Errorf("build transcript path: %w", err)
	}
	opts := storage.PutOptions{
		ContentType: parquetContentType,
		Metadata: map[string]string{
			"batch-id":         batchID,
			"transcript-count": strconv.Itoa(len(batch)),
		},
	}
	if _, err := a.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("put parquet object: %w", err)
	}
	return key, nil
}

func (a *Archiver) requeue(batch []Transcript) {
	a.mu.Lock()
	defer a.mu.Unlock()
	merged := append(batch, a.buffer...)
	if over := len(merged) - a.Config.MaxBuffered; over > 0 {
		merged = merged[over:]
		a.dropped += over
	}
	a.buffer = merged
}

func (a *Archiver) ensureDefaults() {
	a.once.Do(func() {
		if a.Clock == nil {
			a.Clock = time.Now
		}
		if a.Config.BatchSize <= 0 {
			a.Config.BatchSize = 100
		}
		if a.Config.FlushInterval <= 0 {
			a.Config.FlushInterval = 30 * time.Second
		}
		if a.Config.MaxBuffered < a.Config.BatchSize {
			a.Config.MaxBuffered = a.Config.BatchSize * 10
		}
		a.flushReq = make(chan struct{}, 1)
	})
}

func transcriptFromResponse(response assistant.Response, model llm.Info) Transcript {
	row := Transcript{
		ID:            response.ID,
		AskedAtUnixMs: response.AskedAt.UnixMilli(),
		Question:      response.Question,
		SQL:           response.SQL,
		RawResult:     response.RawResult,
		Answer:        response.Answer,
		Status:        string(response.Status),
		FailedAt:      string(response.FailedAt),
		Provider:      model.Provider,
		Model:         model.Model,
		DurationMs:    response.DurationMs,
	}
	if response.Err != nil {
		row.Error = response.Err.Error()
	}
	return row
}

var _ assistant.TranscriptSink = (*Archiver)(nil)
