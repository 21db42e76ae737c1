package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Every page image already has the A4 aspect ratio, so each one fills its
// page edge to edge.
const importDescription = "form:A4, pos:full"

func init() {
	api.DisableConfigDir()
}

// WritePDF assembles pages, one image per page, into a single PDF.
func WritePDF(w io.Writer, pages []*image.RGBA) error {
	if len(pages) == 0 {
		return fmt.Errorf("%w: no pages", ErrRender)
	}

	readers := make([]io.Reader, 0, len(pages))
	for i, page := range pages {
		var buf bytes.Buffer
		if err := png.Encode(&buf, page); err != nil {
			return fmt.Errorf("%w: encode page %d: %v", ErrRender, i+1, err)
		}
		readers = append(readers, &buf)
	}

	imp, err := api.Import(importDescription, types.POINTS)
	if err != nil {
		return fmt.Errorf("%w: import settings: %v", ErrRender, err)
	}
	if err := api.ImportImages(nil, w, readers, imp, nil); err != nil {
		return fmt.Errorf("%w: assemble pdf: %v", ErrRender, err)
	}
	return nil
}
