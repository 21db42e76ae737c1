package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"
)

// ErrRender reports that a document could not be turned into pixels.
var ErrRender = errors.New("document render failed")

// Assets are optional image files painted onto the invoice. Empty paths are
// skipped. ScriptFont, when set, is a TrueType/OpenType file used for text the
// built-in Go fonts cannot shape (the Arabic header and footer lines).
type Assets struct {
	LogoPath   string
	StampPath  string
	StripPath  string
	ScriptFont string
}

var (
	colorRed   = color.RGBA{R: 0xC8, G: 0x4B, B: 0x4B, A: 0xFF}
	colorBlue  = color.RGBA{R: 0x4A, G: 0x5B, B: 0xAE, A: 0xFF}
	colorBeige = color.RGBA{R: 0xE8, G: 0xE5, B: 0xDC, A: 0xFF}
	colorCream = color.RGBA{R: 0xF5, G: 0xF1, B: 0xE8, A: 0xFF}
	colorInk   = color.RGBA{R: 0x1F, G: 0x29, B: 0x37, A: 0xFF}
	colorFaint = color.RGBA{R: 0x4A, G: 0x5B, B: 0xAE, A: 0x4D}
)

// column widths follow the 2 : 0.8 : 0.8 : 1.2 : 1 split of the table.
var columnWidths = [5]int{268, 101, 101, 151, 125}

type Rasterizer struct {
	assets  Assets
	regular *opentype.Font
	bold    *opentype.Font
	script  *opentype.Font
}

func NewRasterizer(assets Assets) (*Rasterizer, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}

	r := &Rasterizer{assets: assets, regular: regular, bold: bold}
	if assets.ScriptFont != "" {
		raw, err := os.ReadFile(assets.ScriptFont)
		if err != nil {
			return nil, fmt.Errorf("read script font: %w", err)
		}
		if r.script, err = opentype.Parse(raw); err != nil {
			return nil, fmt.Errorf("parse script font: %w", err)
		}
	}
	return r, nil
}

type images struct {
	logo  image.Image
	stamp image.Image
	strip image.Image
}

// loadAssets decodes every configured image concurrently and returns only
// once all of them are ready.
func (r *Rasterizer) loadAssets(ctx context.Context) (images, error) {
	var out images
	g, ctx := errgroup.WithContext(ctx)
	load := func(path string, dst *image.Image) {
		if path == "" {
			return
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("%w: read %s: %v", ErrRender, path, err)
			}
			img, _, err := image.Decode(bytes.NewReader(raw))
			if err != nil {
				return fmt.Errorf("%w: decode %s: %v", ErrRender, path, err)
			}
			*dst = img
			return nil
		})
	}
	load(r.assets.LogoPath, &out.logo)
	load(r.assets.StampPath, &out.stamp)
	load(r.assets.StripPath, &out.strip)

	if err := g.Wait(); err != nil {
		return images{}, err
	}
	return out, nil
}

// Rasterize paints doc onto a single RGBA surface of doc.Width() by
// doc.Height() pixels.
func (r *Rasterizer) Rasterize(ctx context.Context, doc Document) (*image.RGBA, error) {
	assets, err := r.loadAssets(ctx)
	if err != nil {
		return nil, err
	}

	p, err := r.newPainter(doc.Width(), doc.Height())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	defer p.close()

	y := Margin
	p.header(doc.Header, assets.logo, y)
	y += HeaderHeight
	tableTop := y
	p.tableHead(doc.Currency, y)
	y += TableHeadHeight
	bodyTop := y
	for _, row := range doc.Rows {
		p.row(row, y)
		y += RowHeight
	}
	p.watermark(assets.logo, bodyTop, y)
	p.stamp(assets.stamp, y)
	p.total(doc.Total, y)
	y += TotalHeight
	p.tableFrame(tableTop, y)
	p.footer(doc.Footer, assets.strip, y)

	return p.img, nil
}

type painter struct {
	img    *image.RGBA
	r      *Rasterizer
	faces  map[faceKey]font.Face
	buf    sfnt.Buffer
	left   int
	right  int
	middle int
}

type faceKey struct {
	bold   bool
	script bool
	size   float64
}

func (r *Rasterizer) newPainter(w, h int) (*painter, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	p := &painter{
		img:    img,
		r:      r,
		faces:  make(map[faceKey]font.Face),
		left:   Margin,
		right:  w - Margin,
		middle: w / 2,
	}
	// Fail early on a broken font instead of half-way through the surface.
	if _, err := p.faceErr(faceKey{size: 15}); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *painter) close() {
	for _, f := range p.faces {
		_ = f.Close()
	}
}

func (p *painter) faceErr(k faceKey) (font.Face, error) {
	if f, ok := p.faces[k]; ok {
		return f, nil
	}
	src := p.r.regular
	switch {
	case k.script && p.r.script != nil:
		src = p.r.script
	case k.bold:
		src = p.r.bold
	}
	f, err := opentype.NewFace(src, &opentype.FaceOptions{Size: k.size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, err
	}
	p.faces[k] = f
	return f, nil
}

func (p *painter) face(size float64, bold bool) font.Face {
	f, err := p.faceErr(faceKey{bold: bold, size: size})
	if err != nil {
		// Go fonts parse at any size once the first face succeeded.
		return p.faces[faceKey{size: 15}]
	}
	return f
}

type align int

const (
	alignLeft align = iota
	alignCenter
	alignRight
)

// text draws s with its baseline at y. For alignCenter x is the centre, for
// alignRight it is the right edge.
func (p *painter) text(s string, size float64, bold bool, c color.Color, x, y int, a align) {
	if s == "" {
		return
	}
	p.draw(p.face(size, bold), s, c, x, y, a)
}

func (p *painter) draw(f font.Face, s string, c color.Color, x, y int, a align) {
	width := font.MeasureString(f, s).Ceil()
	switch a {
	case alignCenter:
		x -= width / 2
	case alignRight:
		x -= width
	}
	d := font.Drawer{Dst: p.img, Src: image.NewUniform(c), Face: f, Dot: fixed.P(x, y)}
	d.DrawString(s)
}

// scriptText draws text that needs the script font and silently skips it
// when no loaded font has the glyphs.
func (p *painter) scriptText(s string, size float64, c color.Color, x, y int, a align) {
	if s == "" {
		return
	}
	if p.r.script == nil || !p.covers(p.r.script, s) {
		if p.covers(p.r.regular, s) {
			p.text(s, size, false, c, x, y, a)
		}
		return
	}
	f, err := p.faceErr(faceKey{script: true, size: size})
	if err != nil {
		return
	}
	p.draw(f, s, c, x, y, a)
}

func (p *painter) covers(f *opentype.Font, s string) bool {
	for _, r := range s {
		if r == ' ' {
			continue
		}
		idx, err := f.GlyphIndex(&p.buf, r)
		if err != nil || idx == 0 {
			return false
		}
	}
	return true
}

// clip shortens s with an ellipsis until it fits in width pixels.
func (p *painter) clip(s string, size float64, bold bool, width int) string {
	f := p.face(size, bold)
	if font.MeasureString(f, s).Ceil() <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if font.MeasureString(f, candidate).Ceil() <= width {
			return candidate
		}
	}
	return ""
}

func (p *painter) fill(rect image.Rectangle, c color.Color) {
	draw.Draw(p.img, rect, image.NewUniform(c), image.Point{}, draw.Over)
}

func (p *painter) hline(x0, x1, y, thickness int, c color.Color) {
	p.fill(image.Rect(x0, y, x1, y+thickness), c)
}

func (p *painter) vline(x, y0, y1, thickness int, c color.Color) {
	p.fill(image.Rect(x, y0, x+thickness, y1), c)
}

// place scales img to fit inside box keeping its aspect ratio, centred, and
// blends it with the given opacity (0-255).
func (p *painter) place(img image.Image, box image.Rectangle, opacity uint8) {
	if img == nil || box.Empty() {
		return
	}
	sb := img.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return
	}
	w, h := box.Dx(), box.Dy()
	if sb.Dx()*h > sb.Dy()*w {
		h = sb.Dy() * w / sb.Dx()
	} else {
		w = sb.Dx() * h / sb.Dy()
	}
	x := box.Min.X + (box.Dx()-w)/2
	y := box.Min.Y + (box.Dy()-h)/2
	dst := image.Rect(x, y, x+w, y+h)

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, sb, xdraw.Src, nil)
	mask := image.NewUniform(color.Alpha{A: opacity})
	draw.DrawMask(p.img, dst, scaled, image.Point{}, mask, image.Point{}, draw.Over)
}

func (p *painter) header(h Header, logo image.Image, top int) {
	p.text(h.NameEnglish, 22, true, colorRed, p.left, top+24, alignLeft)
	p.text(h.TaglineEnglish, 15, true, colorBlue, p.left, top+44, alignLeft)
	p.text(h.LocationEnglish, 15, true, colorBlue, p.left, top+62, alignLeft)
	p.text("Mobile: "+h.Mobile, 17, true, colorBlue, p.left, top+84, alignLeft)

	p.scriptText(h.NameArabic, 22, colorRed, p.right, top+24, alignRight)
	p.scriptText(h.TaglineArabic, 15, colorBlue, p.right, top+44, alignRight)
	p.scriptText(h.LocationArabic, 15, colorBlue, p.right, top+62, alignRight)
	p.scriptText(h.MobileArabic, 17, colorBlue, p.right, top+84, alignRight)

	p.place(logo, image.Rect(p.middle-44, top, p.middle+44, top+88), 0xFF)

	p.text("No.:", 15, false, colorBlue, p.left, top+132, alignLeft)
	p.text(h.InvoiceNumber, 28, true, colorRed, p.left+40, top+132, alignLeft)
	p.text("Invoice", 22, true, colorBlue, p.middle, top+132, alignCenter)
	p.text("Date: "+h.Date, 15, true, colorBlue, p.right, top+120, alignRight)
	p.text(h.LongDate, 13, false, colorBlue, p.right, top+138, alignRight)

	p.hline(p.left, p.right, top+160, 1, colorFaint)
	p.text("Messrs/Mr.", 14, false, colorBlue, p.left, top+188, alignLeft)
	p.text(p.clip(h.CustomerName, 16, false, p.right-p.left-100), 16, false, colorInk, p.left+96, top+186, alignLeft)
	p.hline(p.left+92, p.right, top+194, 1, colorFaint)
}

func (p *painter) columnEdges() [6]int {
	var edges [6]int
	edges[0] = p.left
	for i, w := range columnWidths {
		edges[i+1] = edges[i] + w
	}
	return edges
}

func (p *painter) tableHead(currency string, top int) {
	edges := p.columnEdges()
	p.fill(image.Rect(p.left, top, p.right, top+TableHeadHeight), colorBeige)

	titles := [5]string{"Description", "Unit", "Kg.", "Unit Price", "Total Price"}
	for i, title := range titles {
		if i == 0 {
			p.text(title, 15, true, colorBlue, edges[0]+10, top+28, alignLeft)
			continue
		}
		centre := (edges[i] + edges[i+1]) / 2
		p.text(title, 15, true, colorBlue, centre, top+28, alignCenter)
		if i >= 3 {
			p.text(currency+".", 11, true, colorBlue, centre, top+46, alignCenter)
		}
	}
	p.hline(p.left, p.right, top+TableHeadHeight-3, 3, colorBlue)
}

func (p *painter) row(r Row, top int) {
	edges := p.columnEdges()
	p.fill(image.Rect(edges[4], top, edges[5], top+RowHeight), colorCream)
	p.hline(p.left, p.right, top+RowHeight-2, 2, colorBlue)
	if r.Filler {
		return
	}

	baseline := top + RowHeight/2 + 6
	p.text(p.clip(r.Description, 16, false, columnWidths[0]-20), 16, false, colorInk, edges[0]+10, baseline, alignLeft)
	cells := [4]string{r.Unit, r.Kg, r.UnitPrice, r.Price}
	for i, cell := range cells {
		col := i + 1
		centre := (edges[col] + edges[col+1]) / 2
		size, bold := 16.0, false
		if col == 4 {
			size, bold = 17, true
		}
		p.text(p.clip(cell, size, bold, columnWidths[col]-12), size, bold, colorInk, centre, baseline, alignCenter)
	}
}

func (p *painter) watermark(logo image.Image, top, bottom int) {
	cy := (top + bottom) / 2
	p.place(logo, image.Rect(p.middle-100, cy-100, p.middle+100, cy+100), 0x26)
}

func (p *painter) stamp(stamp image.Image, bodyBottom int) {
	x := p.left + 32
	y := bodyBottom - 48 - 192
	p.place(stamp, image.Rect(x, y, x+192, y+192), 0xBF)
}

func (p *painter) total(total string, top int) {
	edges := p.columnEdges()
	p.fill(image.Rect(p.left, top, p.right, top+TotalHeight), colorBeige)
	p.hline(p.left, p.right, top, 3, colorBlue)
	baseline := top + TotalHeight/2 + 6
	p.text("Total", 15, true, colorBlue, p.left+10, baseline, alignLeft)
	p.hline(p.left+70, edges[4]-20, baseline, 1, colorFaint)
	p.text(total, 22, true, colorBlue, (edges[4]+edges[5])/2, baseline+2, alignCenter)
}

func (p *painter) tableFrame(top, bottom int) {
	edges := p.columnEdges()
	for i := 1; i < 5; i++ {
		p.vline(edges[i], top, bottom-TotalHeight, 2, colorBlue)
	}
	p.hline(p.left, p.right, top, 3, colorBlue)
	p.hline(p.left, p.right, bottom-3, 3, colorBlue)
	p.vline(p.left, top, bottom, 3, colorBlue)
	p.vline(p.right-3, top, bottom, 3, colorBlue)
}

func (p *painter) footer(f Footer, strip image.Image, top int) {
	p.text("Received by:", 15, true, colorBlue, p.left, top+30, alignLeft)
	p.hline(p.left+110, p.right-20, top+34, 2, colorFaint)

	p.place(strip, image.Rect(p.left, top+44, p.right, top+84), 0xFF)

	bar := image.Rect(p.left, top+92, p.right, top+FooterHeight-8)
	p.fill(bar, colorRed)
	p.scriptText(f.AddressArabic, 11, color.White, p.middle, bar.Min.Y+20, alignCenter)
	p.text(p.clip(f.AddressEnglish, 11, false, bar.Dx()-24), 11, false, color.White, p.middle, bar.Min.Y+40, alignCenter)
	if f.Email != "" {
		p.text("Email: "+f.Email, 11, false, color.White, p.middle, bar.Min.Y+60, alignCenter)
	}
}
