// Package loader reads CodeSystem, ValueSet and ConceptMap resources from
// JSON documents, Bundles, directories and FHIR packages into a registry.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/packages"
	"github.com/gofhir/terminology/pkg/logger"
	"github.com/gofhir/terminology/registry"
	"github.com/gofhir/terminology/stream"
)

// LoadStats contains statistics about terminology loading.
type LoadStats struct {
	CodeSystems int64
	ValueSets   int64
	ConceptMaps int64
	Skipped     int64
	Errors      int64
}

// Total returns the number of resources loaded.
func (s *LoadStats) Total() int64 {
	return atomic.LoadInt64(&s.CodeSystems) + atomic.LoadInt64(&s.ValueSets) + atomic.LoadInt64(&s.ConceptMaps)
}

func (s *LoadStats) add(o *LoadStats) {
	atomic.AddInt64(&s.CodeSystems, o.CodeSystems)
	atomic.AddInt64(&s.ValueSets, o.ValueSets)
	atomic.AddInt64(&s.ConceptMaps, o.ConceptMaps)
	atomic.AddInt64(&s.Skipped, o.Skipped)
	atomic.AddInt64(&s.Errors, o.Errors)
}

// Loader loads resources into a registry.
type Loader struct {
	reg     *registry.Registry
	workers int
	log     *logger.Logger
}

// New creates a loader for reg.
func New(reg *registry.Registry, options *ft.Options) *Loader {
	if options == nil {
		options = ft.DefaultOptions()
	}
	return &Loader{
		reg:     reg,
		workers: options.WorkerCount,
		log:     options.Logger.With("loader"),
	}
}

// header reads just the resource type.
type header struct {
	ResourceType string `json:"resourceType"`
}

// bundle represents a minimal FHIR Bundle structure.
type bundle struct {
	Entry []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

// LoadJSON loads a single resource or a Bundle of resources.
// Resource types other than the terminology ones are counted as skipped.
func (l *Loader) LoadJSON(data []byte) (*LoadStats, error) {
	var p header
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	stats := &LoadStats{}
	if p.ResourceType != model.ResourceBundle {
		return stats, l.loadResource(p.ResourceType, data, stats)
	}

	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid Bundle: %w", err)
	}
	for _, entry := range b.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		var ep header
		if err := json.Unmarshal(entry.Resource, &ep); err != nil {
			stats.Errors++
			continue
		}
		if err := l.loadResource(ep.ResourceType, entry.Resource, stats); err != nil {
			l.log.Warn("bundle entry skipped: %v", err)
		}
	}
	return stats, nil
}

func (l *Loader) loadResource(resourceType string, data []byte, stats *LoadStats) error {
	var err error
	switch resourceType {
	case model.ResourceCodeSystem:
		var cs model.CodeSystem
		if err = json.Unmarshal(data, &cs); err == nil {
			err = l.reg.AddCodeSystem(&cs)
		}
		if err == nil {
			stats.CodeSystems++
		}
	case model.ResourceValueSet:
		var vs model.ValueSet
		if err = json.Unmarshal(data, &vs); err == nil {
			err = l.reg.AddValueSet(&vs)
		}
		if err == nil {
			stats.ValueSets++
		}
	case model.ResourceConceptMap:
		var cm model.ConceptMap
		if err = json.Unmarshal(data, &cm); err == nil {
			err = l.reg.AddConceptMap(&cm)
		}
		if err == nil {
			stats.ConceptMaps++
		}
	default:
		stats.Skipped++
		return nil
	}

	if err != nil {
		stats.Errors++
		return fmt.Errorf("failed to load %s: %w", resourceType, err)
	}
	return nil
}

// LoadReader streams a Bundle from r, registering its entries one at a
// time. Entries that fail to decode or register are counted and logged.
func (l *Loader) LoadReader(ctx context.Context, r io.Reader) (*LoadStats, error) {
	stats := &LoadStats{}
	for e := range stream.NewDecoder().Entries(ctx, r) {
		if e.Index < 0 {
			return stats, e.Error
		}
		if e.Error != nil {
			stats.Errors++
			l.log.Warn("bundle entry %d: %v", e.Index, e.Error)
			continue
		}
		if len(e.Resource) == 0 {
			continue
		}
		if err := l.loadResource(e.ResourceType, e.Resource, stats); err != nil {
			l.log.Warn("bundle entry %d skipped: %v", e.Index, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// LoadFile loads a JSON file.
func (l *Loader) LoadFile(path string) (*LoadStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	stats, err := l.LoadJSON(data)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", path, err)
	}
	return stats, nil
}

// LoadDirectory loads every JSON file of a directory in parallel.
// Package metadata files are skipped. Files that fail to load are counted
// and logged; the directory as a whole still loads.
func (l *Loader) LoadDirectory(ctx context.Context, dir string) (*LoadStats, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	return l.LoadFS(ctx, os.DirFS(dir), ".")
}

// LoadFS loads every JSON file directly under dir in fsys.
func (l *Loader) LoadFS(ctx context.Context, fsys fs.FS, dir string) (*LoadStats, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	stats := &LoadStats{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || isMetadata(name) {
			continue
		}

		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			data, err := fs.ReadFile(fsys, path.Join(dir, name))
			if err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				l.log.Warn("failed to read %s: %v", name, err)
				return nil
			}
			fileStats, err := l.LoadJSON(data)
			if err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				l.log.Warn("failed to load %s: %v", name, err)
				return nil
			}
			stats.add(fileStats)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	l.log.Info("loaded %d code systems, %d value sets, %d concept maps from %s (%d errors)",
		stats.CodeSystems, stats.ValueSets, stats.ConceptMaps, dir, stats.Errors)
	return stats, nil
}

// LoadPath loads a file or a directory. Directories holding an unpacked
// FHIR package (a package/ subdirectory) are loaded from their content
// directory.
func (l *Loader) LoadPath(ctx context.Context, p string) (*LoadStats, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", p, err)
	}
	if !info.IsDir() {
		return l.LoadFile(p)
	}
	if content, ok := packages.ContentDir(p); ok {
		p = content
	}
	return l.LoadDirectory(ctx, p)
}

// LoadPackage fetches a FHIR package through client and loads its resources.
func (l *Loader) LoadPackage(ctx context.Context, client *packages.Client, ref packages.Ref) (*LoadStats, error) {
	dir, err := client.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.LoadDirectory(ctx, dir)
}

func isMetadata(name string) bool {
	base := filepath.Base(name)
	return base == "package.json" || base == ".index.json"
}
