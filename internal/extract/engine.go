package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/certledger/certverify/internal/config"
)

// MediaKind identifies the document media handed to the engine.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaPDF   MediaKind = "pdf"
)

// KindForExt maps a file extension (with or without the leading dot,
// any case) to the media kind the engine accepts.
func KindForExt(ext string) (MediaKind, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png", "jpg", "jpeg", "bmp", "tif", "tiff", "gif":
		return MediaImage, true
	case "pdf":
		return MediaPDF, true
	}
	return "", false
}

// Fatal extraction errors. Per-page failures inside a PDF are contained in
// the page's text slot and never surface as errors.
var (
	ErrUnreadableImage = eris.New("unreadable image")
	ErrNoPages         = eris.New("no pages")
)

// Result is the outcome of one extraction call.
type Result struct {
	Success   bool     `json:"success"`
	FileType  string   `json:"file_type,omitempty"`
	Text      string   `json:"text,omitempty"`
	Pages     int      `json:"pages,omitempty"`
	PageTexts []string `json:"page_texts,omitempty"`
	Error     string   `json:"error,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Failure wraps a fatal extraction error in the boundary-facing result shape.
func Failure(err error) Result {
	return Result{Success: false, Error: err.Error(), Message: "Failed to process file"}
}

// pageBreak separates page texts in the combined output.
const pageBreak = "\n\n--- Page Break ---\n\n"

const defaultPSM = 6

// Engine converts document bytes into plain text. Each call is independent;
// any temp file it creates is removed before returning. The preprocessor and
// code decoder are optional capabilities and may be nil.
type Engine struct {
	cfg    config.ExtractConfig
	runner Runner
	pre    Preprocessor
	qr     codeDecoder
	pages  func(data []byte) (int, error)
}

// New builds an Engine from config, probing for the optional ImageMagick and
// zbar capabilities on PATH. Extraction still works when both are absent.
func New(cfg config.ExtractConfig) *Engine {
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.PdfToText == "" {
		cfg.PdfToText = "pdftotext"
	}
	if cfg.PdfToPpm == "" {
		cfg.PdfToPpm = "pdftoppm"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if len(cfg.PSMList) == 0 {
		cfg.PSMList = []int{6, 4, 3, 11}
	}
	if cfg.PDFZoom <= 0 {
		cfg.PDFZoom = 3.0 // ~216 DPI
	}
	if cfg.MinTextLen <= 0 {
		cfg.MinTextLen = 20
	}
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 4
	}

	e := &Engine{cfg: cfg, runner: execRunner{}, pages: pdfPageCount}

	if cfg.Preprocess {
		if bin := cfg.Magick; bin != "" {
			if _, err := exec.LookPath(bin); err == nil {
				e.pre = &magickPreprocessor{bin: bin, runner: e.runner}
			} else {
				zap.L().Info("image preprocessing unavailable", zap.String("bin", bin))
			}
		}
	}
	if bin := cfg.ZbarImg; bin != "" {
		if _, err := exec.LookPath(bin); err == nil {
			e.qr = &zbarDecoder{bin: bin, runner: e.runner}
		} else {
			zap.L().Info("code decoding unavailable", zap.String("bin", bin))
		}
	}

	return e
}

// Extract converts document bytes into plain text.
func (e *Engine) Extract(ctx context.Context, data []byte, kind MediaKind) (Result, error) {
	switch kind {
	case MediaImage:
		if err := decodeCheck(data); err != nil {
			return Result{}, ErrUnreadableImage
		}
		path, cleanup, err := writeTemp(data)
		if err != nil {
			return Result{}, err
		}
		defer cleanup()

		text, err := e.ocrImage(ctx, path)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Success:  true,
			FileType: "image",
			Text:     text,
			Pages:    1,
			Message:  "Text extracted successfully from image",
		}, nil

	case MediaPDF:
		path, cleanup, err := writeTemp(data)
		if err != nil {
			return Result{}, err
		}
		defer cleanup()
		return e.extractPDF(ctx, path, data)

	default:
		return Result{}, eris.Errorf("extract: unsupported media kind %q", kind)
	}
}

// DetectCode decodes an embedded machine-readable code (e.g. a QR symbol)
// from the document, using the first page for PDFs. Best effort: returns ""
// when the capability is absent, decoding fails, or no code is present.
func (e *Engine) DetectCode(ctx context.Context, data []byte, kind MediaKind) string {
	if e.qr == nil {
		return ""
	}

	path, cleanup, err := writeTemp(data)
	if err != nil {
		return ""
	}
	defer cleanup()

	imgPath := path
	if kind == MediaPDF {
		rendered, rcleanup, err := e.renderPage(ctx, path, 1)
		if err != nil {
			zap.L().Debug("code detection: render first page", zap.Error(err))
			return ""
		}
		defer rcleanup()
		imgPath = rendered
	}

	payload, err := e.qr.Decode(ctx, imgPath)
	if err != nil {
		zap.L().Debug("code detection failed", zap.Error(err))
		return ""
	}
	return payload
}

func pdfPageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, eris.Wrap(err, "extract: read pdf")
	}
	return n, nil
}

// writeTemp stores data in a temp file exclusively owned by the caller.
func writeTemp(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "certverify-doc-*")
	if err != nil {
		return "", nil, eris.Wrap(err, "extract: create temp file")
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, eris.Wrap(err, "extract: write temp file")
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, eris.Wrap(err, "extract: close temp file")
	}
	return path, cleanup, nil
}

func pageCountMessage(n int) string {
	return fmt.Sprintf("Text extracted successfully from %d pages", n)
}
