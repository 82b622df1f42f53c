package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/askdb/askdb/internal/storage"
)

func TestPutRootsKeyUnderPrefix(t *testing.T) {
	fake := &fakeBackend{}
	store := newStore(Config{Bucket: " askdb-audit ", Prefix: "/transcripts/prod/"}, fake)

	opts := storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
		Metadata:    map[string]string{"transcript-count": "3"},
	}
	info, err := store.Put(context.Background(), "/date=2026-10-17/hour=09/transcripts-1-a.parquet", bytes.NewBufferString("abc"), 3, opts)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	want := objectRef{Bucket: "askdb-audit", Key: "transcripts/prod/date=2026-10-17/hour=09/transcripts-1-a.parquet"}
	if fake.lastRef != want {
		t.Fatalf("ref = %+v, want %+v", fake.lastRef, want)
	}
	if info.Key != want.Key || info.Size != 3 {
		t.Fatalf("info = %+v", info)
	}
	if fake.lastOpts.ContentType != "application/vnd.apache.parquet" || fake.lastOpts.Metadata["transcript-count"] != "3" {
		t.Fatalf("opts = %+v", fake.lastOpts)
	}
	if store.Location() != "s3://askdb-audit/transcripts/prod" {
		t.Fatalf("Location() = %q", store.Location())
	}
}

func TestPutDefaultsContentType(t *testing.T) {
	fake := &fakeBackend{}
	store := newStore(Config{Bucket: "askdb-audit"}, fake)
	if _, err := store.Put(context.Background(), "k.bin", bytes.NewBufferString("x"), 1, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastOpts.ContentType != defaultContentType {
		t.Fatalf("content type = %q", fake.lastOpts.ContentType)
	}
	if store.Location() != "s3://askdb-audit" {
		t.Fatalf("Location() = %q", store.Location())
	}
}

func TestPutRejectsKeysOutsideRoot(t *testing.T) {
	fake := &fakeBackend{}
	store := newStore(Config{Bucket: "askdb-audit", Prefix: "audit"}, fake)
	for _, key := range []string{"../secrets.txt", "a/../../b", "..", "  ", "/"} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) expected validation error", key)
		}
	}
	if fake.uploads != 0 {
		t.Fatalf("uploads = %d, want 0", fake.uploads)
	}
}

func TestPutWrapsBackendError(t *testing.T) {
	store := newStore(Config{Bucket: "askdb-audit"}, &fakeBackend{uploadErr: errors.New("slow down")})
	_, err := store.Put(context.Background(), "k.parquet", bytes.NewBufferString("x"), 1, storage.PutOptions{})
	if err == nil || !strings.Contains(err.Error(), "s3://askdb-audit/k.parquet") {
		t.Fatalf("Put() error = %v", err)
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	store := newStore(Config{Bucket: "askdb-audit"}, &fakeBackend{downloadErr: storage.ErrObjectNotFound})
	if _, err := store.Get(context.Background(), "missing.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
}

func TestGetReturnsBody(t *testing.T) {
	store := newStore(Config{Bucket: "askdb-audit", Prefix: "p"}, &fakeBackend{})
	reader, err := store.Get(context.Background(), "k.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer reader.Close()
	body, _ := io.ReadAll(reader)
	if string(body) != "p/k.parquet" {
		t.Fatalf("body = %q", body)
	}
}

func TestEnsureBucket(t *testing.T) {
	missing := &fakeBackend{}
	store := newStore(Config{Bucket: "askdb-audit", Region: "eu-central-1"}, missing)
	if err := store.ensureBucket(context.Background()); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if missing.createdRegion != "eu-central-1" {
		t.Fatalf("created region = %q", missing.createdRegion)
	}

	existing := &fakeBackend{exists: true}
	store = newStore(Config{Bucket: "askdb-audit"}, existing)
	if err := store.ensureBucket(context.Background()); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if existing.created {
		t.Fatal("makeBucket should not be called for an existing bucket")
	}
}

func TestPing(t *testing.T) {
	if err := newStore(Config{Bucket: "b"}, &fakeBackend{exists: true}).Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := newStore(Config{Bucket: "b"}, &fakeBackend{}).Ping(context.Background()); err == nil {
		t.Fatal("Ping() expected error for missing bucket")
	}
	if err := newStore(Config{Bucket: "b"}, &fakeBackend{existsErr: errors.New("dial tcp: refused")}).Ping(context.Background()); err == nil {
		t.Fatal("Ping() expected error when backend is unreachable")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{Bucket: "b"}); err == nil {
		t.Fatal("expected endpoint error")
	}
	if _, err := New(context.Background(), Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected bucket error")
	}
	if _, err := New(context.Background(), Config{Endpoint: "ftp://minio", Bucket: "b"}); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{raw: "https://minio.example.com", wantHost: "minio.example.com", wantSecure: true},
		{raw: "http://minio:9000", useSSL: true, wantHost: "minio:9000", wantSecure: true},
		{raw: "localhost:9000", wantHost: "localhost:9000"},
	}
	for _, tc := range tests {
		host, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tc.raw, err)
		}
		if host != tc.wantHost || secure != tc.wantSecure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tc.raw, host, secure)
		}
	}
	if _, _, err := parseEndpoint("https://", false); err == nil {
		t.Fatal("expected missing host error")
	}
}

func TestMapMinioErr(t *testing.T) {
	if err := mapMinioErr(minio.ErrorResponse{Code: "NoSuchKey"}); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("mapMinioErr() = %v", err)
	}
	other := errors.New("boom")
	if mapMinioErr(other) != other {
		t.Fatal("unrelated errors should pass through")
	}
	if mapMinioErr(nil) != nil {
		t.Fatal("nil should stay nil")
	}
}

type fakeBackend struct {
	lastRef       objectRef
	lastOpts      storage.PutOptions
	uploads       int
	uploadErr     error
	downloadErr   error
	exists        bool
	existsErr     error
	created       bool
	createdRegion string
}

func (f *fakeBackend) upload(_ context.Context, ref objectRef, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	f.uploads++
	if f.uploadErr != nil {
		return storage.ObjectInfo{}, f.uploadErr
	}
	f.lastRef = ref
	f.lastOpts = opts
	_, _ = io.Copy(io.Discard, body)
	return storage.ObjectInfo{Key: ref.Key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeBackend) download(_ context.Context, ref objectRef) (io.ReadCloser, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return io.NopCloser(strings.NewReader(ref.Key)), nil
}

func (f *fakeBackend) bucketExists(_ context.Context, _ string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeBackend) makeBucket(_ context.Context, _, region string) error {
	f.created = true
	f.createdRegion = region
	return nil
}
