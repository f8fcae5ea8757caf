package report

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-genomics/guardian-cli/internal/model"
)

// Sink receives a rendered delta report. Sinks perform no filtering of
// their own; they durably write exactly what they are given.
type Sink interface {
	Write(ctx context.Context, report *model.DeltaReport, rendered string) error
}

// FileSink writes rendered reports as markdown files under a directory,
// one file per run.
type FileSink struct {
	dir string
}

// NewFileSink creates a FileSink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (s *FileSink) Write(ctx context.Context, report *model.DeltaReport, rendered string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "report: create dir %s", s.dir)
	}
	path := filepath.Join(s.dir, report.RunID+".md")
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	zap.L().Info("report: written",
		zap.String("run_id", report.RunID),
		zap.String("path", path),
		zap.Int("new_findings", len(report.NewFindings)),
	)
	return nil
}
