package indexer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/knowledgebase/internal/documents"
	"github.com/seanblong/knowledgebase/internal/extract"
	"github.com/seanblong/knowledgebase/pkg/models"
	"golang.org/x/sync/errgroup"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// Ingester indexes one stored file.
type Ingester interface {
	Ingest(ctx context.Context, filePath, filename string) (models.IngestResult, error)
}

// Stats summarizes one run.
type Stats struct {
	Ingested int
	Failed   int
	Skipped  int
	Chunks   int
}

// Indexer copies every supported document under Root into UploadDir and
// ingests it.
type Indexer struct {
	Ingester  Ingester
	Root      string
	UploadDir string
	Workers   int
	Walker    FileSystemWalker

	mu    sync.Mutex
	stats Stats
}

func New(ing Ingester, root, uploadDir string) *Indexer {
	return &Indexer{
		Ingester:  ing,
		Root:      root,
		UploadDir: uploadDir,
		Workers:   defaultWorkers(),
		Walker:    &DefaultFileSystemWalker{},
	}
}

func defaultWorkers() int {
	// Cap at 8 to avoid overwhelming the embedding API
	return min(runtime.NumCPU(), 8)
}

// Run walks Root and ingests files with a bounded pool of workers. A file
// that fails is logged and counted; only walk errors and cancellation stop
// the run.
func (ix *Indexer) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	workers := ix.Workers
	if workers <= 0 {
		workers = defaultWorkers()
	}
	ix.stats = Stats{}

	log.Info().Str("root", ix.Root).Int("workers", workers).Msg("starting concurrent ingestion")

	g, gctx := errgroup.WithContext(ctx)
	work := make(chan string, workers*2)

	g.Go(func() error {
		defer close(work)
		return ix.Walker.Walk(ix.Root, &godirwalk.Options{
			Unsorted: true,
			Callback: func(path string, de *godirwalk.Dirent) error {
				if de != nil && de.IsDir() {
					if path != ix.Root && skipDir(de.Name()) {
						return godirwalk.SkipThis
					}
					return nil
				}
				if shouldSkip(ix.Root, path) {
					ix.record(func(s *Stats) { s.Skipped++ })
					return nil
				}
				select {
				case work <- path:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			},
			ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
				log.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
				return godirwalk.SkipNode
			},
		})
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for path := range work {
				ix.process(gctx, path)
			}
			return nil
		})
	}

	err := g.Wait()
	stats := ix.stats
	log.Info().
		Int("ingested", stats.Ingested).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Int("chunks", stats.Chunks).
		Dur("took", time.Since(start)).
		Msg("ingestion finished")
	return stats, err
}

func (ix *Indexer) process(ctx context.Context, path string) {
	name := filepath.ToSlash(rel(ix.Root, path))

	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to open file")
		ix.record(func(s *Stats) { s.Failed++ })
		return
	}
	stored, err := documents.SaveUpload(ix.UploadDir, name, f)
	_ = f.Close()
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to store file")
		ix.record(func(s *Stats) { s.Failed++ })
		return
	}

	res, err := ix.Ingester.Ingest(ctx, stored, name)
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("ingest failed")
		if rmErr := os.Remove(stored); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", stored).Msg("failed to remove stored copy")
		}
		ix.record(func(s *Stats) { s.Failed++ })
		return
	}
	ix.record(func(s *Stats) {
		s.Ingested++
		s.Chunks += res.TotalChunks
	})
}

func (ix *Indexer) record(f func(*Stats)) {
	ix.mu.Lock()
	f(&ix.stats)
	ix.mu.Unlock()
}

var skippedDirs = map[string]bool{
	".git": true, ".svn": true, ".hg": true,
	"vendor": true, "node_modules": true, ".terraform": true,
	"target": true, "build": true, "dist": true, "out": true, "bin": true, "obj": true,
	".venv": true, "venv": true, "__pycache__": true, ".pytest_cache": true,
	".gradle": true, ".m2": true, ".idea": true, "coverage": true, ".cache": true,
}

func skipDir(name string) bool {
	return skippedDirs[strings.ToLower(name)]
}

// shouldSkip returns true if the file at path should not be ingested.
func shouldSkip(root, path string) bool {
	parts := strings.Split(filepath.ToSlash(rel(root, path)), "/")
	for _, dir := range parts[:len(parts)-1] {
		if skipDir(dir) {
			return true
		}
	}
	return !extract.Supported(filepath.Ext(path))
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return r
}
