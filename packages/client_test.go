package packages

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/pkg/logger"
)

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testServer(t *testing.T, archive []byte, downloads *atomic.Int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hl7.terminology.r4":
			fmt.Fprintf(w, `{"dist-tags":{"latest":"6.2.0"},"versions":{"6.2.0":{"dist":{"tarball":"%s/tarballs/tho.tgz"}}}}`, srv.URL)
		case "/tarballs/tho.tgz":
			downloads.Add(1)
			_, _ = w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		in   string
		want Ref
	}{
		{"hl7.terminology.r4#6.2.0", Ref{Name: "hl7.terminology.r4", Version: "6.2.0"}},
		{"hl7.terminology.r4@latest", Ref{Name: "hl7.terminology.r4", Version: "latest"}},
		{"hl7.terminology.r4", Ref{Name: "hl7.terminology.r4"}},
	}
	for _, tt := range tests {
		if got := ParseRef(tt.in); got != tt.want {
			t.Errorf("ParseRef(%q) = %+v; want %+v", tt.in, got, tt.want)
		}
	}

	ref, ok := TerminologyRef(ft.R5)
	if !ok || ref.Name != "hl7.terminology.r5" {
		t.Errorf("TerminologyRef(R5) = %+v, %v", ref, ok)
	}
}

func TestClient_Fetch(t *testing.T) {
	archive := tarball(t, map[string]string{
		"package/package.json":            `{"name":"hl7.terminology.r4","version":"6.2.0","fhirVersions":["4.0.1"]}`,
		"package/CodeSystem-example.json": `{"resourceType":"CodeSystem","url":"http://example.org/cs"}`,
	})
	var downloads atomic.Int32
	srv := testServer(t, archive, &downloads)

	c := NewClient(
		WithRegistryURL(srv.URL),
		WithCacheDir(t.TempDir()),
		WithLogger(logger.New(io.Discard, logger.LevelNone)),
	)
	ctx := context.Background()

	dir, err := c.Fetch(ctx, Ref{Name: "hl7.terminology.r4", Version: VersionLatest})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "CodeSystem-example.json")); err != nil {
		t.Errorf("extracted resource missing: %v", err)
	}

	m, err := ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if m.Version != "6.2.0" {
		t.Errorf("manifest version = %q; want 6.2.0", m.Version)
	}

	// A pinned version already in the cache needs no download.
	if _, err := c.Fetch(ctx, Ref{Name: "hl7.terminology.r4", Version: "6.2.0"}); err != nil {
		t.Fatalf("Fetch(pinned) error = %v", err)
	}
	if downloads.Load() != 1 {
		t.Errorf("downloads = %d; want 1", downloads.Load())
	}

	refs, err := c.Cached()
	if err != nil || len(refs) != 1 || refs[0].Version != "6.2.0" {
		t.Errorf("Cached() = %+v, %v", refs, err)
	}
}

func TestClient_FetchMissing(t *testing.T) {
	var downloads atomic.Int32
	srv := testServer(t, nil, &downloads)
	c := NewClient(WithRegistryURL(srv.URL), WithCacheDir(t.TempDir()))

	_, err := c.Fetch(context.Background(), Ref{Name: "no.such.package", Version: "1.0.0"})
	if !errors.Is(err, ft.ErrNotFound) {
		t.Errorf("Fetch(missing) error = %v; want ErrNotFound", err)
	}

	_, err = c.Fetch(context.Background(), Ref{Name: "hl7.terminology.r4", Version: "0.0.1"})
	if !errors.Is(err, ft.ErrNotFound) {
		t.Errorf("Fetch(unknown version) error = %v; want ErrNotFound", err)
	}
}

func TestExtractTarGz_RejectsTraversal(t *testing.T) {
	archive := tarball(t, map[string]string{"../evil.json": "{}"})
	if err := extractTarGz(bytes.NewReader(archive), t.TempDir()); err == nil {
		t.Error("extractTarGz() should reject paths outside the destination")
	}
}
