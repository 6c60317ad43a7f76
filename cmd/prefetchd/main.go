// Command prefetchd serves batch manifests for training files under a local
// data root. Clients POST a JSON array of paths to /batch and receive the
// binary manifest with each path's content.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gorilla/mux"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/datarope/prefetch/manifest"
)

var logger *zap.Logger

func init() {
	logger = zap.Must(zap.NewDevelopment())
	zap.ReplaceGlobals(logger)
}

func main() {
	listen := flag.String("listen", ":3000", "address to serve on")
	root := flag.String("root", ".", "directory requested paths are resolved against")
	workers := flag.Int("workers", runtime.GOMAXPROCS(0), "concurrent file reads per batch")
	flag.Parse()

	if port := os.Getenv("PORT"); port != "" {
		*listen = ":" + port
	}

	srv := &batchServer{root: *root, workers: *workers}

	r := mux.NewRouter()
	r.HandleFunc("/batch", srv.handleBatch).Methods(http.MethodPost)

	logger.Info("Serving batch manifests",
		zap.String("listen", *listen),
		zap.String("root", *root),
		zap.Int("workers", *workers))

	if err := http.ListenAndServe(*listen, r); err != nil {
		logger.Panic("could not listen", zap.Error(err))
	}
}

type batchServer struct {
	root    string
	workers int
}

func (s *batchServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	var paths []string
	if err := json.NewDecoder(r.Body).Decode(&paths); err != nil {
		http.Error(w, "request body must be a JSON array of paths", http.StatusBadRequest)
		return
	}

	data, err := s.encodeBatch(r.Context(), paths)
	if err != nil {
		logger.Error("batch failed", zap.Int("paths", len(paths)), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(data); err != nil {
		logger.Warn("write response", zap.Error(err))
		return
	}
	logger.Debug("served batch", zap.Int("paths", len(paths)), zap.Int("bytes", len(data)))
}

// encodeBatch reads the requested paths concurrently, keeps the results in
// request order, and encodes the manifest.
func (s *batchServer) encodeBatch(ctx context.Context, paths []string) ([]byte, error) {
	entries := make([]manifest.Entry, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if s.workers > 0 {
		g.SetLimit(s.workers)
	}
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			full, err := s.resolve(p)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(full) //nolint:gosec // resolve confines the path to the data root
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			entries[i] = manifest.Entry{Path: p, Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return manifest.EncodeEntries(entries), nil
}

// resolve joins p onto the data root and rejects paths that escape it.
func (s *batchServer) resolve(p string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(p))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the data root", p)
	}
	return full, nil
}
