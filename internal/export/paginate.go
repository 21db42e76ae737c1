// Package export turns a rendered invoice into its distributable forms: a
// multi-page PDF and a plain-text share message.
package export

import (
	"image"
	"image/draw"
	"math"
)

// PageSize is a page in millimetres.
type PageSize struct {
	Width  float64
	Height float64
}

var A4 = PageSize{Width: 210, Height: 297}

// Placement positions the full document image on one page. OffsetY is in page
// units and is zero or negative: the image is shifted up so the part that
// belongs to this page is visible.
type Placement struct {
	Page    int
	OffsetY float64
}

// Paginate tiles a surfaceW x surfaceH image, scaled to the page width, across
// as many pages as its scaled height needs.
func Paginate(surfaceW, surfaceH int, page PageSize) []Placement {
	if surfaceW <= 0 || surfaceH <= 0 || page.Width <= 0 || page.Height <= 0 {
		return nil
	}
	imgHeight := page.Width * float64(surfaceH) / float64(surfaceW)

	placements := []Placement{{Page: 0, OffsetY: 0}}
	heightLeft := imgHeight - page.Height
	for heightLeft > 0 {
		placements = append(placements, Placement{
			Page:    len(placements),
			OffsetY: -(imgHeight - heightLeft),
		})
		heightLeft -= page.Height
	}
	return placements
}

// SlicePages cuts one page-sized window per placement out of img. Pixels
// below the end of the document stay white.
func SlicePages(img image.Image, placements []Placement, page PageSize) []*image.RGBA {
	bounds := img.Bounds()
	pxPerUnit := float64(bounds.Dx()) / page.Width
	pageHeightPx := int(math.Round(page.Height * pxPerUnit))

	pages := make([]*image.RGBA, 0, len(placements))
	for _, pl := range placements {
		dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), pageHeightPx))
		draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

		shift := int(math.Round(-pl.OffsetY * pxPerUnit))
		draw.Draw(dst, dst.Bounds(), img, image.Point{X: bounds.Min.X, Y: bounds.Min.Y + shift}, draw.Src)
		pages = append(pages, dst)
	}
	return pages
}
