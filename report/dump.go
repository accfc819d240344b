package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/use-agent/bizscout/extract"
	"github.com/use-agent/bizscout/models"
)

var reUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// dumpName is "<index>_<slug>", safe on every filesystem.
func dumpName(o models.FetchOutcome) string {
	slug := strings.Trim(reUnsafe.ReplaceAllString(o.Query, "_"), "_")
	if len(slug) > 60 {
		slug = slug[:60]
	}
	return fmt.Sprintf("%04d_%s", o.Index, slug)
}

// DumpPages writes each outcome's HTML, and a Markdown snapshot when ext is
// non-nil, into dir. Outcomes without HTML are skipped.
func DumpPages(dir string, outcomes []models.FetchOutcome, ext *extract.Extractor) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	written := 0
	for _, o := range outcomes {
		if o.HTML == "" {
			continue
		}
		base := filepath.Join(dir, dumpName(o))
		if err := os.WriteFile(base+".html", []byte(o.HTML), 0o644); err != nil {
			return err
		}
		written++
		if ext == nil {
			continue
		}
		md, err := ext.Snapshot(o.HTML)
		if err != nil {
			slog.Warn("snapshot failed", "query", o.Query, "error", err)
			continue
		}
		if err := os.WriteFile(base+".md", []byte(md), 0o644); err != nil {
			return err
		}
	}
	slog.Info("debug pages written", "dir", dir, "pages", written)
	return nil
}
