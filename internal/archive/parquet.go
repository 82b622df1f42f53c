package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/askdb/askdb/internal/storage"
)

// Transcript is one archived question/answer exchange.
type Transcript struct {
	ID            string `parquet:"id"`
	AskedAtUnixMs int64  `parquet:"asked_at_unix_ms"`
	Question      string `parquet:"question"`
	SQL           string `parquet:"sql"`
	RawResult     string `parquet:"raw_result"`
	Answer        string `parquet:"answer"`
	Status        string `parquet:"status"`
	FailedAt      string `parquet:"failed_at"`
	Error         string `parquet:"error"`
	Provider      string `parquet:"provider"`
	Model         string `parquet:"model"`
	DurationMs    int64  `parquet:"duration_ms"`
}

func EncodeTranscripts(rows []Transcript) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("transcripts are required")
	}
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Transcript](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeTranscripts(data []byte) ([]Transcript, error) {
	rows, err := parquet.Read[Transcript](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	return rows, nil
}

// ReadBatch loads one archived batch back from the store.
func ReadBatch(ctx context.Context, store storage.ObjectStore, key string) ([]Transcript, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return DecodeTranscripts(data)
}
