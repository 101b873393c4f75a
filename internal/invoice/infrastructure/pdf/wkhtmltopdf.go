package pdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
)

// Engine renders HTML with the wkhtmltopdf binary found on PATH (or in the
// WKHTMLTOPDF_PATH environment variable).
type Engine struct {
	dpi      uint
	pageSize string
}

func NewEngine() *Engine {
	return &Engine{dpi: 300, pageSize: wkhtmltopdf.PageSizeA4}
}

func (e *Engine) Render(ctx context.Context, html []byte) ([]byte, error) {
	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("wkhtmltopdf: %w", err)
	}
	pdfg.Dpi.Set(e.dpi)
	pdfg.PageSize.Set(e.pageSize)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader(html))
	pdfg.AddPage(page)

	if err := pdfg.CreateContext(ctx); err != nil {
		return nil, fmt.Errorf("wkhtmltopdf: %w", err)
	}
	return pdfg.Bytes(), nil
}
