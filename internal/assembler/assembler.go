// Package assembler turns an ordered run of page images into a PDF with one
// full-bleed page per image, and inspects ready-made PDFs.
package assembler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // register decoder

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// pageLayout makes each page exactly the size of its image, so the image is
// neither cropped nor distorted.
const pageLayout = "pos:full"

// Assembler builds brochure documents.
type Assembler struct {
	logger *zap.Logger
}

// New returns an Assembler.
func New(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger}
}

// Assemble renders pages in the order given. Pages that do not decode are
// skipped and counted; the document fails only when no page survives.
func (a *Assembler) Assemble(ctx context.Context, pages []crawler.AssetPage) (doc crawler.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = crawler.Document{}, fmt.Errorf("assemble pdf: %v", r)
		}
	}()
	if len(pages) == 0 {
		return crawler.Document{}, crawler.ErrEmptyDocument
	}
	var (
		readers []io.Reader
		ids     []string
		skipped int
	)
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return crawler.Document{}, fmt.Errorf("assemble: %w", err)
		}
		data, err := normalize(page.Data)
		if err != nil {
			skipped++
			a.logger.Warn("skipping undecodable page",
				zap.String("page_id", page.SequenceID),
				zap.String("url", page.URL),
				zap.Error(err),
			)
			continue
		}
		readers = append(readers, bytes.NewReader(data))
		ids = append(ids, page.SequenceID)
	}
	if len(readers) == 0 {
		return crawler.Document{}, fmt.Errorf("%w: all %d pages failed to decode", crawler.ErrEmptyDocument, len(pages))
	}

	imp, err := api.Import(pageLayout, types.POINTS)
	if err != nil {
		return crawler.Document{}, fmt.Errorf("page layout: %w", err)
	}
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, imp, newConfiguration()); err != nil {
		return crawler.Document{}, fmt.Errorf("import images: %w", err)
	}
	return crawler.Document{
		Data:         out.Bytes(),
		PageCount:    len(readers),
		SkippedPages: skipped,
		PageIDs:      ids,
	}, nil
}

// Inspect validates a downloaded PDF and counts its pages. pdfcpu can panic
// on malformed cross-reference data, so panics come back as ErrAssetFetch.
func (a *Assembler) Inspect(_ context.Context, data []byte) (doc crawler.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = crawler.Document{}, fmt.Errorf("%w: inspect pdf: %v", crawler.ErrAssetFetch, r)
		}
	}()
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return crawler.Document{}, fmt.Errorf("%w: body is not a pdf", crawler.ErrAssetFetch)
	}
	count, err := api.PageCount(bytes.NewReader(data), newConfiguration())
	if err != nil {
		return crawler.Document{}, fmt.Errorf("%w: read pdf: %w", crawler.ErrAssetFetch, err)
	}
	if count == 0 {
		return crawler.Document{}, crawler.ErrEmptyDocument
	}
	return crawler.Document{Data: data, PageCount: count}, nil
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// normalize fully decodes data to reject corrupt images. JPEG and PNG are
// embedded as-is; other formats are re-encoded as PNG.
func normalize(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("image has zero size")
	}
	switch format {
	case "jpeg", "png":
		return data, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("re-encode %s page: %w", format, err)
	}
	return buf.Bytes(), nil
}
