// Package pdfocr extracts text from PDF files, preferring the embedded
// text layer and falling back to rasterize-and-OCR for scanned
// documents.
package pdfocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pamin/idms/internal/core/domain"
	"github.com/pamin/idms/internal/core/ports"
)

const defaultOCRDPI = 300

// Extractor implements ports.ContentExtractor. The OCR path shells out
// to poppler's pdftoppm and tesseract so the binary carries no CGO
// imaging stack.
type Extractor struct {
	hasher       ports.Hasher
	tesseractCmd string
	pdftoppmCmd  string
	ocrDPI       int
}

type Option func(*Extractor)

// WithOCRCommands overrides the external tool paths, for hosts where
// the binaries are not on PATH.
func WithOCRCommands(tesseract, pdftoppm string) Option {
	return func(e *Extractor) {
		if tesseract != "" {
			e.tesseractCmd = tesseract
		}
		if pdftoppm != "" {
			e.pdftoppmCmd = pdftoppm
		}
	}
}

func WithOCRDPI(dpi int) Option {
	return func(e *Extractor) {
		if dpi > 0 {
			e.ocrDPI = dpi
		}
	}
}

func New(hasher ports.Hasher, opts ...Option) *Extractor {
	e := &Extractor{
		hasher:       hasher,
		tesseractCmd: "tesseract",
		pdftoppmCmd:  "pdftoppm",
		ocrDPI:       defaultOCRDPI,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract recovers text and telemetry from filePath. When neither the
// text layer nor OCR yields any text, the partial Extraction is
// returned alongside a domain.ErrExtraction so callers can still audit
// hash, size and page count of the failed file.
func (e *Extractor) Extract(ctx context.Context, filePath string) (domain.Extraction, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return domain.Extraction{Method: domain.MethodFailed},
			domain.WrapError(domain.ErrExtraction, "pdfocr.Extract", err)
	}

	hash, err := e.hasher.HashFile(filePath)
	if err != nil {
		return domain.Extraction{Method: domain.MethodFailed},
			domain.WrapError(domain.ErrExtraction, "pdfocr.Extract", err)
	}

	ext := domain.Extraction{
		Hash:          hash,
		FileSizeBytes: info.Size(),
		Method:        domain.MethodPDFText,
	}

	content, pages, textErr := e.textLayer(filePath)
	ext.PagesProcessed = pages

	if content == "" {
		ext.Method = domain.MethodOCR
		ext.OCRUsed = true
		ext.OCRDPI = e.ocrDPI
		ext.OCREngineVersion = e.tesseractVersion(ctx)

		var ocrPages int
		content, ocrPages, err = e.ocr(ctx, filePath)
		if err != nil {
			ext.Method = domain.MethodFailed
			if textErr != nil {
				err = fmt.Errorf("%w (text layer: %v)", err, textErr)
			}
			return ext, domain.WrapError(domain.ErrExtraction, "pdfocr.Extract", err)
		}
		if ocrPages > 0 {
			ext.PagesProcessed = ocrPages
		}
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return ext, domain.WrapError(domain.ErrExtraction, "pdfocr.Extract",
			fmt.Errorf("no text found via PDF stripping or OCR"))
	}

	ext.Content = content
	ext.TextLength = len(content)
	return ext, nil
}

// textLayer reads the embedded text of every page. Pages without a
// text layer contribute nothing; a fully scanned document comes back
// empty, which triggers the OCR fallback.
func (e *Extractor) textLayer(filePath string) (string, int, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	total := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String()), total, nil
}

// ocr rasterizes the PDF into per-page PNGs and runs tesseract on each
// one, concatenating the recognized text in page order.
func (e *Extractor) ocr(ctx context.Context, filePath string) (string, int, error) {
	tmpDir, err := os.MkdirTemp("", "idms-ocr-*")
	if err != nil {
		return "", 0, err
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	rasterize := exec.CommandContext(ctx, e.pdftoppmCmd,
		"-r", fmt.Sprintf("%d", e.ocrDPI), "-png", filePath, prefix)
	if out, err := rasterize.CombinedOutput(); err != nil {
		return "", 0, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}

	images, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return "", 0, err
	}
	if len(images) == 0 {
		return "", 0, fmt.Errorf("pdftoppm produced no pages")
	}
	sort.Strings(images)

	var sb strings.Builder
	for _, img := range images {
		recognize := exec.CommandContext(ctx, e.tesseractCmd, img, "stdout")
		var stdout, stderr bytes.Buffer
		recognize.Stdout = &stdout
		recognize.Stderr = &stderr
		if err := recognize.Run(); err != nil {
			return "", 0, fmt.Errorf("tesseract %s: %w: %s",
				filepath.Base(img), err, strings.TrimSpace(stderr.String()))
		}
		sb.WriteString(stdout.String())
		sb.WriteString("\n")
	}
	return sb.String(), len(images), nil
}

// tesseractVersion asks the engine for its version string so telemetry
// pins the exact OCR build. Failure to ask is not fatal.
func (e *Extractor) tesseractVersion(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, e.tesseractCmd, "--version").CombinedOutput()
	if err != nil {
		return "Tesseract (Unknown Version)"
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}
