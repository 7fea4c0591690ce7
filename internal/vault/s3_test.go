package vault

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"hardwire/internal/config"
)

// fakeS3 records path-style object PUTs and answers bucket HEADs.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	bucket  string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodHead:
		if path != f.bucket {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.objects[path] = string(body)
		f.mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3Vault(t *testing.T, bucket string) (*S3Vault, *fakeS3) {
	t.Helper()

	fake := &fakeS3{objects: make(map[string]string), bucket: "archives"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	v, err := NewS3Vault(context.Background(), config.VaultConfig{
		Type:           "s3",
		Name:           "remote",
		S3Bucket:       bucket,
		S3Prefix:       "hardwire",
		S3Region:       "us-east-1",
		S3Endpoint:     srv.URL,
		S3AccessKey:    "access",
		S3SecretKey:    "secret",
		S3UsePathStyle: true,
	})
	if err != nil {
		t.Fatalf("NewS3Vault() error = %v", err)
	}
	return v, fake
}

func TestS3Vault_PutArchive(t *testing.T) {
	v, fake := newFakeS3Vault(t, "archives")

	loc, err := v.PutArchive(context.Background(), "docs.zip", strings.NewReader("zipdata"), 7)
	if err != nil {
		t.Fatalf("PutArchive() error = %v", err)
	}
	if loc != "s3://archives/hardwire/docs.zip" {
		t.Errorf("PutArchive() location = %q", loc)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	got, ok := fake.objects["archives/hardwire/docs.zip"]
	if !ok {
		t.Fatalf("object not uploaded; have %v", fake.objects)
	}
	if !strings.Contains(got, "zipdata") {
		t.Errorf("uploaded object = %q, want it to carry %q", got, "zipdata")
	}
}

func TestS3Vault_PutArchive_SizeMismatch(t *testing.T) {
	v, _ := newFakeS3Vault(t, "archives")

	if _, err := v.PutArchive(context.Background(), "docs.zip", strings.NewReader("zip"), 7); err == nil {
		t.Error("PutArchive() expected size mismatch error")
	}
}

func TestS3Vault_ValidateSetup(t *testing.T) {
	t.Run("existing bucket", func(t *testing.T) {
		v, _ := newFakeS3Vault(t, "archives")
		if err := v.ValidateSetup(context.Background()); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})

	t.Run("missing bucket", func(t *testing.T) {
		v, _ := newFakeS3Vault(t, "other")
		if err := v.ValidateSetup(context.Background()); err == nil {
			t.Error("ValidateSetup() expected error for missing bucket")
		}
	})
}

func TestNewS3Vault_RequiresBucket(t *testing.T) {
	if _, err := NewS3Vault(context.Background(), config.VaultConfig{Type: "s3"}); err == nil {
		t.Error("NewS3Vault() expected error without bucket")
	}
}
