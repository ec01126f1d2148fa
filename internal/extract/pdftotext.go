package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/shanehull/resultalert/internal/types"
)

// PDFToTextStrategy shells out to poppler's pdftotext in layout mode. It
// copes with font encodings the pure Go reader cannot decode.
type PDFToTextStrategy struct {
	Binary string
}

func (s PDFToTextStrategy) Name() string { return "pdftotext" }

func (s PDFToTextStrategy) Attempt(ctx context.Context, doc *Document) (types.ExtractedMetrics, float64, error) {
	if !doc.IsPDF() {
		return types.ExtractedMetrics{}, 0, ErrNotApplicable
	}
	text, err := s.run(ctx, doc.Data)
	if err != nil {
		return types.ExtractedMetrics{}, 0, err
	}
	rows := strings.Split(text, "\n")
	m := Merge(ParseRows(rows, doc.Hint), ParseText(text, doc.Hint))
	return m, m.Confidence, nil
}

// Available reports whether the binary is on PATH.
func (s PDFToTextStrategy) Available() bool {
	_, err := exec.LookPath(s.binary())
	return err == nil
}

func (s PDFToTextStrategy) binary() string {
	if s.Binary != "" {
		return s.Binary
	}
	return "pdftotext"
}

func (s PDFToTextStrategy) run(ctx context.Context, data []byte) (string, error) {
	tmpFile, err := os.CreateTemp("", "resultalert_*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpFileName := tmpFile.Name()
	defer os.Remove(tmpFileName)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write PDF bytes to temp file: %w", err)
	}
	tmpFile.Close()

	cmd := exec.CommandContext(ctx, s.binary(), "-layout", "-l", fmt.Sprint(maxPDFPages), tmpFileName, "-")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("pdftotext failed: %w. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := out.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("pdftotext extracted empty text. File may be image-based or protected")
	}
	return text, nil
}
