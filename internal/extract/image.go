package extract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// decodeCheck verifies the bytes decode as a known bitmap format without
// materializing the full image.
func decodeCheck(data []byte) error {
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err
}

// ocrImage runs the adaptive image path on an image file: optional
// preprocessing, segmentation-mode selection by mean confidence, then a
// final text pass with the winning mode.
func (e *Engine) ocrImage(ctx context.Context, path string) (string, error) {
	work := path
	if e.pre != nil {
		out, err := e.pre.Preprocess(ctx, path)
		if err != nil {
			// Capability failure degrades to the original bitmap.
			zap.L().Debug("preprocessing skipped", zap.Error(err))
		} else {
			work = out
			defer os.Remove(out)
		}
	}

	psm, conf := e.selectPSM(ctx, work)
	text, err := e.tesseractText(ctx, work, psm)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	zap.L().Info("ocr complete",
		zap.Int("psm", psm),
		zap.Float64("mean_conf", conf),
		zap.Int("length", len(text)),
	)
	return text, nil
}

// selectPSM scores each candidate segmentation mode by the mean word
// confidence of a TSV run and returns the best one. Ties favor the
// earliest-listed candidate; if every run fails or scores zero, the fixed
// default mode is used.
func (e *Engine) selectPSM(ctx context.Context, path string) (int, float64) {
	best := -1.0
	chosen := 0
	for _, psm := range e.cfg.PSMList {
		conf, err := e.tesseractMeanConf(ctx, path, psm)
		if err != nil {
			zap.L().Debug("psm scoring failed", zap.Int("psm", psm), zap.Error(err))
			continue
		}
		if conf > best {
			best = conf
			chosen = psm
		}
	}
	if best <= 0 {
		return defaultPSM, 0
	}
	return chosen, best
}

func (e *Engine) tesseractArgs(path string, psm int) []string {
	args := []string{path, "stdout", "--oem", "3", "-l", e.cfg.Language, "--psm", strconv.Itoa(psm)}
	if e.cfg.Whitelist != "" {
		args = append(args, "-c", "tessedit_char_whitelist="+e.cfg.Whitelist)
	}
	return args
}

// tesseractText runs a plain text extraction with the given segmentation mode.
func (e *Engine) tesseractText(ctx context.Context, path string, psm int) (string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.tesseractArgs(path, psm)...)
	if err != nil {
		return "", eris.Wrapf(err, "extract: tesseract: %s", errb)
	}
	return string(out), nil
}

// tesseractMeanConf runs tesseract in TSV mode and returns the mean
// word-level confidence (0..100). Rows without a score, such as whitespace
// separators reported as -1, are excluded.
func (e *Engine) tesseractMeanConf(ctx context.Context, path string, psm int) (float64, error) {
	args := append(e.tesseractArgs(path, psm), "tsv")
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "extract: tesseract tsv: %s", errb)
	}

	var sum float64
	var n int
	for i, ln := range strings.Split(string(out), "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[len(cols)-2]
		if confStr == "" || confStr == "-1" {
			continue
		}
		v, err := strconv.ParseFloat(confStr, 64)
		if err != nil {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

// Preprocessor is an optional capability that produces a cleaned-up copy of
// an image for OCR. The returned path is a new temp file owned by the caller.
type Preprocessor interface {
	Preprocess(ctx context.Context, path string) (string, error)
}

// magickPreprocessor shells out to ImageMagick: grayscale, edge-preserving
// denoise, Otsu binarization, and a light morphological open.
type magickPreprocessor struct {
	bin    string
	runner Runner
}

func (p *magickPreprocessor) Preprocess(ctx context.Context, path string) (string, error) {
	f, err := os.CreateTemp("", "certverify-pre-*.png")
	if err != nil {
		return "", eris.Wrap(err, "extract: create preprocess temp")
	}
	out := f.Name()
	f.Close()

	_, errb, err := p.runner.Run(ctx, p.bin, path,
		"-colorspace", "Gray",
		"-bilateral-blur", "7x50",
		"-auto-threshold", "OTSU",
		"-morphology", "Open", "Square:1",
		out,
	)
	if err != nil {
		os.Remove(out)
		return "", eris.Wrapf(err, "extract: magick: %s", errb)
	}
	return out, nil
}

// codeDecoder is an optional capability that reads a machine-readable code
// from an image file.
type codeDecoder interface {
	Decode(ctx context.Context, path string) (string, error)
}

// zbarDecoder shells out to zbarimg. Exit status 4 means no symbol was
// found, which is not an error.
type zbarDecoder struct {
	bin    string
	runner Runner
}

func (z *zbarDecoder) Decode(ctx context.Context, path string) (string, error) {
	out, errb, err := z.runner.Run(ctx, z.bin, "--raw", "-q", path)
	if err != nil {
		if code := exitCode(err); code == 4 {
			return "", nil
		}
		return "", eris.Wrapf(err, "extract: zbarimg: %s", errb)
	}
	for _, ln := range strings.Split(string(out), "\n") {
		if s := strings.TrimSpace(ln); s != "" {
			return s, nil
		}
	}
	return "", nil
}

func exitCode(err error) int {
	var e *exec.ExitError
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return -1
}
