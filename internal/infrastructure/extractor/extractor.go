package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/akozlov/graphrag/internal/core/domain"
	"github.com/akozlov/graphrag/internal/core/ports"
	"github.com/akozlov/graphrag/internal/infrastructure/extractor/pdfdoc"
	"github.com/akozlov/graphrag/internal/infrastructure/extractor/plaintext"
	"github.com/akozlov/graphrag/internal/infrastructure/extractor/xlsxdoc"
)

// Dispatcher routes extraction by MIME type, falling back to the
// filename extension when the upload came without a usable one.
type Dispatcher struct {
	plain ports.TextExtractor
	pdf   ports.TextExtractor
	xlsx  ports.TextExtractor
}

func NewDispatcher(storage ports.ObjectStorage) *Dispatcher {
	return &Dispatcher{
		plain: plaintext.NewExtractor(storage),
		pdf:   pdfdoc.NewExtractor(storage),
		xlsx:  xlsxdoc.NewExtractor(storage),
	}
}

func (d *Dispatcher) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	switch kindOf(doc) {
	case "pdf":
		return d.pdf.Extract(ctx, doc)
	case "xlsx":
		return d.xlsx.Extract(ctx, doc)
	case "text":
		return d.plain.Extract(ctx, doc)
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text",
			fmt.Errorf("unsupported document type: %s (%s)", doc.Filename, doc.MimeType))
	}
}

func kindOf(doc *domain.Document) string {
	mime := strings.ToLower(doc.MimeType)
	switch {
	case strings.Contains(mime, "pdf"):
		return "pdf"
	case strings.Contains(mime, "spreadsheetml"), strings.Contains(mime, "ms-excel"):
		return "xlsx"
	case strings.HasPrefix(mime, "text/"), strings.Contains(mime, "json"), strings.Contains(mime, "markdown"):
		return "text"
	}

	switch strings.ToLower(filepath.Ext(doc.Filename)) {
	case ".pdf":
		return "pdf"
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".txt", ".md", ".csv", ".json", ".log":
		return "text"
	}
	return ""
}
