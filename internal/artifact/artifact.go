// Package artifact persists the two per-run artifacts: the raw page bundle
// used for debugging and the structured run result as JSON.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/paperscout/internal/crawler"
	"github.com/JakeFAU/paperscout/internal/id/uuid"
	"github.com/JakeFAU/paperscout/internal/metrics"
)

// DefaultPageBytes bounds each page's body inside the bundle.
const DefaultPageBytes = 200000

const namePrefix = "scrape_arxiv_"

// Config controls artifact naming and size.
type Config struct {
	Prefix    string
	PageBytes int
}

// Paths are the object paths of one run's artifacts, relative to the store.
type Paths struct {
	JSON   string
	Bundle string
}

// Writer renders and stores run artifacts.
type Writer struct {
	store  crawler.BlobStore
	hasher crawler.Hasher
	cfg    Config
	logger *zap.Logger
}

// New constructs a Writer.
func New(store crawler.BlobStore, hasher crawler.Hasher, cfg Config, logger *zap.Logger) *Writer {
	if cfg.PageBytes <= 0 {
		cfg.PageBytes = DefaultPageBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, hasher: hasher, cfg: cfg, logger: logger}
}

// Names returns the deterministic artifact paths for a run.
func Names(prefix string, startedAt time.Time, runID string) Paths {
	base := fmt.Sprintf("%s%s_%s", namePrefix, startedAt.UTC().Format("20060102_150405"), uuid.Short(runID))
	return Paths{
		JSON:   path.Join(prefix, base+".json"),
		Bundle: path.Join(prefix, base+"_bundle.html"),
	}
}

// Persist writes the bundle and then the JSON result. The result's SavedTo
// and BundleFile are filled in before the JSON is rendered, so the document
// names its own location. A failed write clears the matching field, records
// ARTIFACT_WRITE_FAILED and flips the run to not OK.
func (w *Writer) Persist(ctx context.Context, result *crawler.RunResult, pages []crawler.BundlePage) error {
	names := Names(w.cfg.Prefix, result.StartedAt, result.RunID)
	result.BundleFile = w.store.Locate(names.Bundle)
	result.SavedTo = w.store.Locate(names.JSON)

	var errs []error
	bundle, err := w.RenderBundle(pages)
	if err == nil {
		_, err = w.store.PutObject(ctx, names.Bundle, "text/html; charset=utf-8", bytes.NewReader(bundle))
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("write bundle: %w", err))
		w.fail(result, "bundle", err)
		result.BundleFile = ""
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err == nil {
		_, err = w.store.PutObject(ctx, names.JSON, "application/json", bytes.NewReader(payload))
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("write result: %w", err))
		w.fail(result, "result", err)
		result.SavedTo = ""
	}
	return errors.Join(errs...)
}

func (w *Writer) fail(result *crawler.RunResult, what string, err error) {
	metrics.ObserveArtifactWriteFailure()
	w.logger.Error("artifact write failed",
		zap.String("run_id", result.RunID),
		zap.String("artifact", what),
		zap.Error(err),
	)
	result.OK = false
	for _, code := range result.Errors {
		if code == crawler.ErrCodeArtifactWrite {
			return
		}
	}
	result.Errors = append(result.Errors, crawler.ErrCodeArtifactWrite)
}

// RenderBundle concatenates pages, each wrapped in provenance comments and
// truncated to the configured size.
func (w *Writer) RenderBundle(pages []crawler.BundlePage) ([]byte, error) {
	var b bytes.Buffer
	for _, page := range pages {
		label := strings.ToUpper(string(page.Kind))
		digest, err := w.hasher.Hash(page.Body)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", page.URL, err)
		}
		fmt.Fprintf(&b, "<!-- %s URL: %s | HTTP %d | sha256=%s -->\n", label, sanitizeComment(page.URL), page.StatusCode, digest)
		if page.Signals != nil {
			signals, err := json.Marshal(page.Signals)
			if err != nil {
				return nil, fmt.Errorf("encode signals: %w", err)
			}
			fmt.Fprintf(&b, "<!-- SIGNALS: %s -->\n", signals)
		}
		b.Write(truncate(page.Body, w.cfg.PageBytes))
		fmt.Fprintf(&b, "\n<!-- END %s -->\n\n", label)
	}
	return b.Bytes(), nil
}

// truncate cuts body to at most limit bytes without splitting a UTF-8 sequence.
func truncate(body []byte, limit int) []byte {
	if len(body) <= limit {
		return body
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

func sanitizeComment(s string) string {
	return strings.ReplaceAll(s, "--", "%2D%2D")
}
