package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// extractPDF processes every page: direct embedded-text extraction when the
// page carries enough text, OCR on a rasterized render otherwise. Pages run
// in parallel but results keep document order; a failing page records an
// error marker in its slot instead of aborting the document.
func (e *Engine) extractPDF(ctx context.Context, path string, data []byte) (Result, error) {
	n, err := e.pages(data)
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		return Result{}, ErrNoPages
	}

	texts := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PageWorkers)
	for page := 1; page <= n; page++ {
		g.Go(func() error {
			text, err := e.extractPage(gctx, path, page)
			if err != nil {
				zap.L().Error("page processing failed", zap.Int("page", page), zap.Error(err))
				texts[page-1] = fmt.Sprintf("Error processing page %d: %v", page, err)
				return nil
			}
			texts[page-1] = text
			return nil
		})
	}
	_ = g.Wait() // page errors are contained above

	return Result{
		Success:   true,
		FileType:  "pdf",
		Text:      strings.Join(texts, pageBreak),
		Pages:     n,
		PageTexts: texts,
		Message:   pageCountMessage(n),
	}, nil
}

// extractPage returns the text of a single 1-based page.
func (e *Engine) extractPage(ctx context.Context, path string, page int) (string, error) {
	direct, err := e.pdfPageText(ctx, path, page)
	if err == nil {
		direct = strings.TrimSpace(direct)
		if utf8.RuneCountInString(direct) >= e.cfg.MinTextLen {
			zap.L().Debug("page used direct extraction",
				zap.Int("page", page), zap.Int("length", len(direct)))
			return direct, nil
		}
	} else {
		zap.L().Debug("direct extraction failed", zap.Int("page", page), zap.Error(err))
	}

	rendered, cleanup, err := e.renderPage(ctx, path, page)
	if err != nil {
		return "", err
	}
	defer cleanup()

	text, err := e.ocrImage(ctx, rendered)
	if err != nil {
		return "", err
	}
	zap.L().Debug("page used ocr", zap.Int("page", page), zap.Int("length", len(text)))
	return text, nil
}

// pdfPageText extracts the embedded text of one page without rendering.
func (e *Engine) pdfPageText(ctx context.Context, path string, page int) (string, error) {
	p := strconv.Itoa(page)
	out, errb, err := e.runner.Run(ctx, e.cfg.PdfToText,
		"-f", p, "-l", p, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", eris.Wrapf(err, "extract: pdftotext page %d: %s", page, errb)
	}
	return string(out), nil
}

// renderPage rasterizes one page to a PNG at the configured zoom factor.
// The cleanup func removes the render's temp directory.
func (e *Engine) renderPage(ctx context.Context, path string, page int) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "certverify-page-*")
	if err != nil {
		return "", nil, eris.Wrap(err, "extract: create render dir")
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	p := strconv.Itoa(page)
	dpi := strconv.Itoa(int(e.cfg.PDFZoom * 72))
	prefix := filepath.Join(tmpDir, "page")
	_, errb, err := e.runner.Run(ctx, e.cfg.PdfToPpm,
		"-f", p, "-l", p, "-r", dpi, "-png", path, prefix)
	if err != nil {
		cleanup()
		return "", nil, eris.Wrapf(err, "extract: pdftoppm page %d: %s", page, errb)
	}

	matches, _ := filepath.Glob(prefix + "*.png")
	if len(matches) == 0 {
		cleanup()
		return "", nil, eris.Errorf("extract: page %d rendered no image", page)
	}
	sort.Strings(matches)
	return matches[0], cleanup, nil
}
