// Package packages fetches FHIR NPM packages, such as the HL7 terminology
// package, from a package registry into a local package cache.
//
// Downloaded packages are unpacked under <cache>/<name>#<version>, the layout
// shared with other FHIR tooling, so packages already fetched by those tools
// are reused without a network round trip.
package packages

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/pkg/logger"
)

const (
	// DefaultRegistryURL is the primary FHIR package registry.
	DefaultRegistryURL = "https://packages.fhir.org"

	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 60 * time.Second

	// DefaultCacheDir is the cache location relative to the home directory.
	DefaultCacheDir = ".fhir/packages"

	// VersionLatest selects the dist-tag "latest".
	VersionLatest = "latest"

	maxFileSize = 200 << 20
)

// Ref names a package version.
type Ref struct {
	Name    string
	Version string
}

// String renders the reference as name#version.
func (r Ref) String() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + "#" + r.Version
}

// ParseRef parses "name#version" or "name@version".
func ParseRef(s string) Ref {
	if i := strings.LastIndexAny(s, "#@"); i > 0 {
		return Ref{Name: s[:i], Version: s[i+1:]}
	}
	return Ref{Name: s}
}

// TerminologyRef returns the terminology package for a FHIR version.
func TerminologyRef(version ft.FHIRVersion) (Ref, bool) {
	name, v, ok := version.TerminologyPackage()
	return Ref{Name: name, Version: v}, ok
}

// Manifest is the package.json of a FHIR package.
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	FHIRVersions []string          `json:"fhirVersions"`
	Dependencies map[string]string `json:"dependencies"`
	Canonical    string            `json:"canonical"`
}

// Client downloads packages into a local cache.
type Client struct {
	httpClient  *http.Client
	registryURL string
	cacheDir    string
	log         *logger.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithRegistryURL sets a custom registry URL.
func WithRegistryURL(url string) Option {
	return func(c *Client) {
		c.registryURL = strings.TrimRight(url, "/")
	}
}

// WithCacheDir sets the package cache directory.
func WithCacheDir(dir string) Option {
	return func(c *Client) {
		c.cacheDir = dir
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l.With("packages")
		}
	}
}

// NewClient creates a package client.
func NewClient(opts ...Option) *Client {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		registryURL: DefaultRegistryURL,
		cacheDir:    filepath.Join(home, DefaultCacheDir),
		log:         logger.Default().With("packages"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheDir returns the package cache directory.
func (c *Client) CacheDir() string {
	return c.cacheDir
}

// registryEntry is the registry's description of a package.
type registryEntry struct {
	DistTags map[string]string `json:"dist-tags"`
	Versions map[string]struct {
		Dist struct {
			Tarball string `json:"tarball"`
		} `json:"dist"`
		URL string `json:"url"`
	} `json:"versions"`
}

func (c *Client) entry(ctx context.Context, name string) (*registryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.registryURL+"/"+name, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("package %s: %w", name, ft.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("package %s: registry returned status %d", name, resp.StatusCode)
	}

	var e registryEntry
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return nil, fmt.Errorf("failed to decode package %s: %w", name, err)
	}
	return &e, nil
}

// Fetch makes a package available locally and returns the directory holding
// its resources. Cached packages are returned without contacting the registry
// unless the version is "latest" or empty.
func (c *Client) Fetch(ctx context.Context, ref Ref) (string, error) {
	if ref.Version != "" && ref.Version != VersionLatest {
		if dir, ok := c.cached(ref); ok {
			return dir, nil
		}
	}

	e, err := c.entry(ctx, ref.Name)
	if err != nil {
		return "", err
	}

	if ref.Version == "" || ref.Version == VersionLatest {
		latest, ok := e.DistTags[VersionLatest]
		if !ok {
			return "", fmt.Errorf("package %s has no latest version: %w", ref.Name, ft.ErrNotFound)
		}
		ref.Version = latest
		if dir, ok := c.cached(ref); ok {
			return dir, nil
		}
	}

	v, ok := e.Versions[ref.Version]
	if !ok {
		return "", fmt.Errorf("package %s: %w", ref, ft.ErrNotFound)
	}
	tarball := v.Dist.Tarball
	if tarball == "" {
		tarball = v.URL
	}
	if tarball == "" {
		return "", fmt.Errorf("package %s has no download url: %w", ref, ft.ErrNotFound)
	}

	if err := c.download(ctx, tarball, c.path(ref)); err != nil {
		return "", err
	}
	c.log.Info("downloaded %s", ref)

	dir, _ := c.cached(ref)
	return dir, nil
}

func (c *Client) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := extractTarGz(resp.Body, dest); err != nil {
		os.RemoveAll(dest)
		return fmt.Errorf("failed to extract %s: %w", url, err)
	}
	return nil
}

// path returns the cache directory for a package.
func (c *Client) path(ref Ref) string {
	return filepath.Join(c.cacheDir, strings.ReplaceAll(ref.Name, "/", "-")+"#"+ref.Version)
}

// cached returns the content directory of a cached package.
func (c *Client) cached(ref Ref) (string, bool) {
	return ContentDir(c.path(ref))
}

// ContentDir returns the directory that holds a package's resources, which is
// either dir/package or dir itself.
func ContentDir(dir string) (string, bool) {
	for _, d := range []string{filepath.Join(dir, "package"), dir} {
		if _, err := os.Stat(filepath.Join(d, "package.json")); err == nil {
			return d, true
		}
	}
	return "", false
}

// ReadManifest reads package.json from a package content directory.
func ReadManifest(contentDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(contentDir, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}
	return &m, nil
}

// Cached lists the packages present in the cache.
func (c *Client) Cached() ([]Ref, error) {
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var refs []Ref
	for _, e := range entries {
		if e.IsDir() && strings.Contains(e.Name(), "#") {
			refs = append(refs, ParseRef(e.Name()))
		}
	}
	return refs, nil
}

func extractTarGz(r io.Reader, destDir string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	root := filepath.Clean(destDir) + string(os.PathSeparator)
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		target := filepath.Join(destDir, header.Name) //nolint:gosec // G305: checked against root below
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("invalid tar path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeFile(target, io.LimitReader(tr, maxFileSize)); err != nil {
				return err
			}
		}
	}
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
