// Package document renders the first page of PDFs and office files to JPEG.
//
// Office formats are converted to PDF with LibreOffice first; PDFs are
// rasterized with pdftoppm. Both tools run through an execx.Runner.
package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/dmitrijs2005/groupfiles/internal/common"
	"github.com/dmitrijs2005/groupfiles/internal/execx"
	"github.com/dmitrijs2005/groupfiles/internal/filex"
	"github.com/dmitrijs2005/groupfiles/internal/logging"
	"github.com/dmitrijs2005/groupfiles/internal/server/profiles"
)

const (
	contentTypePDF = "application/pdf"

	sourceBase   = "source"
	pagePrefix   = "page"
	renderedPage = pagePrefix + ".jpg"
)

// officeExtensions lists the types soffice can convert to PDF.
var officeExtensions = map[string]string{
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.oasis.opendocument.text":                                   ".odt",
	"application/vnd.oasis.opendocument.presentation":                           ".odp",
}

// Rasterizer derives preview and thumbnail JPEGs from a rendered page.
type Rasterizer interface {
	ToPreview(data []byte) ([]byte, error)
	ToThumbnail(data []byte) ([]byte, error)
}

type Options struct {
	PdftoppmPath string
	SofficePath  string
	DPI          int
	Attempts     int
	Backoff      time.Duration
}

func DefaultOptions() Options {
	return Options{
		PdftoppmPath: "pdftoppm",
		DPI:          110,
		Attempts:     3,
		Backoff:      time.Second,
	}
}

// Result carries the artifacts of a successful render.
type Result struct {
	Preview   []byte
	Thumbnail []byte
	PageCount int
}

type Renderer struct {
	runner execx.Runner
	raster Rasterizer
	opts   Options
	logger logging.Logger

	sleep     func(ctx context.Context, d time.Duration) error
	pageCount func(path string) (int, error)
}

func NewRenderer(runner execx.Runner, raster Rasterizer, opts Options, l logging.Logger) *Renderer {
	def := DefaultOptions()
	if opts.PdftoppmPath == "" {
		opts.PdftoppmPath = def.PdftoppmPath
	}
	if opts.DPI <= 0 {
		opts.DPI = def.DPI
	}
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = def.Backoff
	}
	return &Renderer{
		runner:    runner,
		raster:    raster,
		opts:      opts,
		logger:    l.With("module", "document"),
		sleep:     sleepCtx,
		pageCount: pdfPageCount,
	}
}

// Supports reports whether a document of contentType can be rendered.
// Office types need a configured soffice binary.
func (r *Renderer) Supports(contentType string) bool {
	ct := profiles.NormalizeContentType(contentType)
	if ct == contentTypePDF {
		return true
	}
	_, ok := officeExtensions[ct]
	return ok && r.opts.SofficePath != ""
}

// Render writes data into ws, renders its first page and derives a preview
// and thumbnail. Every failure is reported as common.ErrRenderingFailed.
func (r *Renderer) Render(ctx context.Context, ws *filex.Workspace, data []byte, contentType string) (*Result, error) {
	ct := profiles.NormalizeContentType(contentType)
	if !r.Supports(ct) {
		return nil, fmt.Errorf("%w: cannot render %s", common.ErrRenderingFailed, ct)
	}

	pdfPath, err := r.preparePDF(ctx, ws, data, ct)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRenderingFailed, err)
	}

	pages, err := r.pageCount(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: count pages: %w", common.ErrRenderingFailed, err)
	}

	page, err := r.renderFirstPage(ctx, ws, pdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRenderingFailed, err)
	}

	preview, err := r.raster.ToPreview(page)
	if err != nil {
		return nil, fmt.Errorf("%w: preview: %w", common.ErrRenderingFailed, err)
	}
	thumb, err := r.raster.ToThumbnail(preview)
	if err != nil {
		return nil, fmt.Errorf("%w: thumbnail: %w", common.ErrRenderingFailed, err)
	}

	return &Result{Preview: preview, Thumbnail: thumb, PageCount: pages}, nil
}

// preparePDF stores the upload in ws and returns the path of a PDF version.
func (r *Renderer) preparePDF(ctx context.Context, ws *filex.Workspace, data []byte, ct string) (string, error) {
	if ct == contentTypePDF {
		return ws.WriteFile(sourceBase+".pdf", data)
	}

	src, err := ws.WriteFile(sourceBase+officeExtensions[ct], data)
	if err != nil {
		return "", err
	}
	_, err = r.runner.Run(ctx, r.opts.SofficePath,
		"--headless",
		"--norestore",
		"--convert-to", "pdf",
		"--outdir", ws.Path(),
		src,
	)
	if err != nil {
		return "", fmt.Errorf("convert to pdf: %w", err)
	}
	return ws.Join(sourceBase + ".pdf"), nil
}

// renderFirstPage rasterizes page 1 and reads it back. The output file can
// show up after the tool returns, so the read is retried a bounded number of
// times; the tool itself is re-run only after a failed invocation.
func (r *Renderer) renderFirstPage(ctx context.Context, ws *filex.Workspace, pdfPath string) ([]byte, error) {
	rendered := false
	var lastErr error

	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		if !rendered {
			if err := r.rasterize(ctx, ws, pdfPath); err != nil {
				lastErr = err
				r.logger.Warn(ctx, "page rasterization failed", "attempt", attempt, "error", err)
			} else {
				rendered = true
			}
		}

		if rendered {
			page, err := ws.ReadFile(renderedPage)
			if err == nil && len(page) > 0 {
				return page, nil
			}
			if err == nil {
				err = fmt.Errorf("%s is empty", renderedPage)
			}
			lastErr = err
			r.logger.Debug(ctx, "rendered page not readable yet", "attempt", attempt, "error", err)
		}

		if attempt < r.opts.Attempts {
			if err := r.sleep(ctx, r.opts.Backoff); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("first page not rendered after %d attempts: %w", r.opts.Attempts, lastErr)
}

func (r *Renderer) rasterize(ctx context.Context, ws *filex.Workspace, pdfPath string) error {
	_, err := r.runner.Run(ctx, r.opts.PdftoppmPath,
		"-f", "1",
		"-l", "1",
		"-r", strconv.Itoa(r.opts.DPI),
		"-jpeg",
		"-singlefile",
		pdfPath,
		filepath.Join(ws.Path(), pagePrefix),
	)
	return err
}

// pdfPageCount reads the page tree. The parser panics on some malformed
// files; that is reported as an error.
func pdfPageCount(path string) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return reader.NumPage(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
