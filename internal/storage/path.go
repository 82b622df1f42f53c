package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var batchIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildTranscriptPath lays batches out by UTC date and hour so archives can
// be pruned or queried by partition:
//
//	date=2026-10-17/hour=09/transcripts-1792227900000-<batch>.parquet
func BuildTranscriptPath(flushedAt time.Time, batchID string) (string, error) {
	if !batchIDPattern.MatchString(batchID) {
		return "", fmt.Errorf("invalid batch id: %q", batchID)
	}
	ts := flushedAt.UTC()
	return path.Join(
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("transcripts-%d-%s.parquet", ts.UnixMilli(), batchID),
	), nil
}
