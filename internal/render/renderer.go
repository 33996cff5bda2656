// Package render draws a chess position as a PNG snapshot: board squares,
// piece sprites rasterized from embedded SVG glyphs, move and selection
// highlights, and a small header strip with rank and file labels.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"chessdesk/internal/board"
)

const (
	squareSize   = 64
	boardSquares = 8
	boardSize    = squareSize * boardSquares

	leftMargin   = 26
	rightMargin  = 14
	topMargin    = 84
	bottomMargin = 26

	canvasWidth  = leftMargin + boardSize + rightMargin
	canvasHeight = topMargin + boardSize + bottomMargin

	headerPanelHeight = 32
	statusPanelHeight = 26
	panelRadius       = 8.0

	targetDotRadius  = 9.0
	targetRingRadius = 29.0
	targetRingWidth  = 4.0
)

var (
	backgroundFill = color.RGBA{R: 22, G: 24, B: 33, A: 255}
	lightSquare    = color.RGBA{R: 240, G: 217, B: 181, A: 255}
	darkSquare     = color.RGBA{R: 181, G: 136, B: 99, A: 255}

	lastMoveFill  = color.NRGBA{R: 205, G: 210, B: 106, A: 150}
	selectionFill = color.NRGBA{R: 155, G: 199, B: 0, A: 115}
	checkFill     = color.NRGBA{R: 231, G: 72, B: 56, A: 170}
	targetMark    = color.NRGBA{R: 18, G: 58, B: 27, A: 150}

	boardShadow = color.NRGBA{R: 0, G: 0, B: 0, A: 90}
	panelFill   = color.NRGBA{R: 13, G: 15, B: 24, A: 235}
	panelText   = color.RGBA{R: 236, G: 239, B: 244, A: 255}
	panelMuted  = color.RGBA{R: 148, G: 163, B: 184, A: 255}
	labelColor  = color.RGBA{R: 203, G: 213, B: 225, A: 255}
)

// MoveHighlight marks the origin and destination of the latest move.
type MoveHighlight struct {
	From nchess.Square
	To   nchess.Square
}

// Options selects the decorations drawn on top of the bare position.
type Options struct {
	// Header is the title line, left-aligned in the top panel. The
	// material balance is appended on the right edge of the same panel.
	Header string
	// Status is an optional second line under the header.
	Status string
	// Flipped renders the board from Black's seat.
	Flipped bool

	LastMove *MoveHighlight
	Selected *nchess.Square
	Targets  []nchess.Square
	// InCheck tints the square of the side-to-move king.
	InCheck bool
}

// Renderer draws board snapshots. It is safe for concurrent use; the
// piece sprite cache is shared across calls.
type Renderer struct {
	pieces *pieceRasterizer
}

func New() *Renderer {
	return &Renderer{pieces: newPieceRasterizer()}
}

// RenderPNG draws pos with the given decorations and returns the encoded
// PNG bytes.
func (r *Renderer) RenderPNG(ctx context.Context, pos board.Position, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, canvasWidth, canvasHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundFill), image.Point{}, draw.Src)

	drawBoardShadow(img)
	drawSquares(img, opts.Flipped)
	drawHighlights(img, pos, opts)
	if err := r.drawPieces(img, pos, opts.Flipped); err != nil {
		return nil, err
	}
	drawTargetMarks(img, pos, opts)
	drawCoordinates(img, opts.Flipped)
	drawHUD(img, pos, opts)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("render: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBoardShadow(img *image.RGBA) {
	rect := image.Rect(leftMargin-4, topMargin-4, leftMargin+boardSize+6, topMargin+boardSize+6)
	drawRoundedPanel(img, rect, 10, boardShadow)
}

func drawSquares(img *image.RGBA, flipped bool) {
	for row := 0; row < boardSquares; row++ {
		for col := 0; col < boardSquares; col++ {
			sq := squareAt(col, row, flipped)
			fill := lightSquare
			if isDarkSquare(sq) {
				fill = darkSquare
			}
			rect := image.Rect(
				leftMargin+col*squareSize,
				topMargin+row*squareSize,
				leftMargin+(col+1)*squareSize,
				topMargin+(row+1)*squareSize,
			)
			draw.Draw(img, rect, image.NewUniform(fill), image.Point{}, draw.Src)
		}
	}
}

func drawHighlights(img *image.RGBA, pos board.Position, opts Options) {
	if opts.LastMove != nil {
		fillSquare(img, opts.LastMove.From, opts.Flipped, lastMoveFill)
		fillSquare(img, opts.LastMove.To, opts.Flipped, lastMoveFill)
	}
	if opts.Selected != nil {
		fillSquare(img, *opts.Selected, opts.Flipped, selectionFill)
	}
	if opts.InCheck {
		if king, ok := kingSquare(pos, pos.Turn()); ok {
			fillSquare(img, king, opts.Flipped, checkFill)
		}
	}
}

func (r *Renderer) drawPieces(img *image.RGBA, pos board.Position, flipped bool) error {
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			sq := nchess.NewSquare(file, rank)
			piece := pos.PieceAt(sq)
			if piece == nchess.NoPiece {
				continue
			}
			sprite, err := r.pieces.sprite(piece, squareSize)
			if err != nil {
				return err
			}
			rect := squareRect(sq, flipped)
			draw.Draw(img, rect, sprite, sprite.Bounds().Min, draw.Over)
		}
	}
	return nil
}

// drawTargetMarks paints the legal destinations of the selected piece: a
// dot on empty squares, a ring around capturable ones. Drawn after the
// pieces so rings stay visible.
func drawTargetMarks(img *image.RGBA, pos board.Position, opts Options) {
	for _, sq := range opts.Targets {
		rect := squareRect(sq, opts.Flipped)
		cx := float64(rect.Min.X) + squareSize/2
		cy := float64(rect.Min.Y) + squareSize/2
		if pos.PieceAt(sq) != nchess.NoPiece {
			drawRing(img, cx, cy, targetRingRadius, targetRingWidth, targetMark)
		} else {
			drawDisc(img, cx, cy, targetDotRadius, targetMark)
		}
	}
}

func drawCoordinates(img *image.RGBA, flipped bool) {
	face := basicfont.Face7x13
	for col := 0; col < boardSquares; col++ {
		sq := squareAt(col, boardSquares-1, flipped)
		label := string(rune('a' + int(sq.File())))
		x := leftMargin + col*squareSize + squareSize/2 - textWidth(face, label)/2
		y := topMargin + boardSize + 17
		drawString(img, face, label, x, y, labelColor)
	}
	for row := 0; row < boardSquares; row++ {
		sq := squareAt(0, row, flipped)
		label := string(rune('1' + int(sq.Rank())))
		x := leftMargin/2 - textWidth(face, label)/2
		y := topMargin + row*squareSize + squareSize/2 + face.Ascent/2
		drawString(img, face, label, x, y, labelColor)
	}
}

func drawHUD(img *image.RGBA, pos board.Position, opts Options) {
	face := basicfont.Face7x13

	header := opts.Header
	if header == "" {
		header = "chessdesk"
	}
	header = truncateToWidth(face, header, boardSize-90)

	headerRect := image.Rect(leftMargin, 10, leftMargin+boardSize, 10+headerPanelHeight)
	drawRoundedPanel(img, headerRect, panelRadius, panelFill)
	textY := headerRect.Min.Y + headerPanelHeight/2 + face.Ascent/2 - 1
	drawString(img, face, header, headerRect.Min.X+12, textY, panelText)

	white, black := pos.Material()
	balance := formatMaterialBalance(white, black)
	drawString(img, face, balance, headerRect.Max.X-12-textWidth(face, balance), textY, panelMuted)

	if opts.Status == "" {
		return
	}
	status := truncateToWidth(face, opts.Status, boardSize-40)
	statusRect := image.Rect(leftMargin, 48, leftMargin+boardSize, 48+statusPanelHeight)
	drawRoundedPanel(img, statusRect, panelRadius, panelFill)
	statusY := statusRect.Min.Y + statusPanelHeight/2 + face.Ascent/2 - 1
	drawString(img, face, status, statusRect.Min.X+(statusRect.Dx()-textWidth(face, status))/2, statusY, panelText)
}

func formatMaterialBalance(white, black int) string {
	diff := white - black
	if diff == 0 {
		return "="
	}
	return fmt.Sprintf("%+d", diff)
}

// squareAt maps a canvas column and row to the square drawn there.
func squareAt(col, row int, flipped bool) nchess.Square {
	if flipped {
		col = boardSquares - 1 - col
		row = boardSquares - 1 - row
	}
	file := nchess.FileA + nchess.File(col)
	rank := nchess.Rank8 - nchess.Rank(row)
	return nchess.NewSquare(file, rank)
}

func squareRect(sq nchess.Square, flipped bool) image.Rectangle {
	col := int(sq.File())
	row := boardSquares - 1 - int(sq.Rank())
	if flipped {
		col = boardSquares - 1 - col
		row = boardSquares - 1 - row
	}
	x := leftMargin + col*squareSize
	y := topMargin + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func isDarkSquare(sq nchess.Square) bool {
	return (int(sq.File())+int(sq.Rank()))%2 == 0
}

func kingSquare(pos board.Position, side nchess.Color) (nchess.Square, bool) {
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			sq := nchess.NewSquare(file, rank)
			piece := pos.PieceAt(sq)
			if piece != nchess.NoPiece && piece.Type() == nchess.King && piece.Color() == side {
				return sq, true
			}
		}
	}
	return nchess.NewSquare(nchess.FileA, nchess.Rank1), false
}

func fillSquare(img *image.RGBA, sq nchess.Square, flipped bool, fill color.NRGBA) {
	rect := squareRect(sq, flipped)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			blendPixel(img, x, y, fill)
		}
	}
}

func drawDisc(img *image.RGBA, cx, cy, radius float64, fill color.NRGBA) {
	minX := int(math.Floor(cx - radius - 1))
	maxX := int(math.Ceil(cx + radius + 1))
	minY := int(math.Floor(cy - radius - 1))
	maxY := int(math.Ceil(cy + radius + 1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			dist := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			coverage := clamp01(radius - dist + 0.5)
			if coverage <= 0 {
				continue
			}
			c := fill
			c.A = uint8(float64(fill.A) * coverage)
			blendPixel(img, x, y, c)
		}
	}
}

func drawRing(img *image.RGBA, cx, cy, radius, width float64, fill color.NRGBA) {
	outer := radius + width/2
	minX := int(math.Floor(cx - outer - 1))
	maxX := int(math.Ceil(cx + outer + 1))
	minY := int(math.Floor(cy - outer - 1))
	maxY := int(math.Ceil(cy + outer + 1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			dist := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			coverage := clamp01(width/2 - math.Abs(dist-radius) + 0.5)
			if coverage <= 0 {
				continue
			}
			c := fill
			c.A = uint8(float64(fill.A) * coverage)
			blendPixel(img, x, y, c)
		}
	}
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius float64, fill color.NRGBA) {
	innerLeft := float64(rect.Min.X) + radius
	innerRight := float64(rect.Max.X) - radius
	innerTop := float64(rect.Min.Y) + radius
	innerBottom := float64(rect.Max.Y) - radius
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			fx := float64(x) + 0.5
			fy := float64(y) + 0.5
			dx := fx - clampF(fx, innerLeft, innerRight)
			dy := fy - clampF(fy, innerTop, innerBottom)
			coverage := clamp01(radius - math.Hypot(dx, dy) + 0.5)
			if coverage <= 0 {
				continue
			}
			c := fill
			c.A = uint8(float64(fill.A) * coverage)
			blendPixel(img, x, y, c)
		}
	}
}

// blendPixel composites a straight-alpha color over the destination pixel.
func blendPixel(img *image.RGBA, x, y int, c color.NRGBA) {
	if !(image.Point{X: x, Y: y}.In(img.Bounds())) {
		return
	}
	dst := img.RGBAAt(x, y)
	alpha := uint32(c.A)
	inv := 255 - alpha
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((uint32(c.R)*alpha + uint32(dst.R)*inv) / 255),
		G: uint8((uint32(c.G)*alpha + uint32(dst.G)*inv) / 255),
		B: uint8((uint32(c.B)*alpha + uint32(dst.B)*inv) / 255),
		A: 255,
	})
}

func drawString(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func textWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

func truncateToWidth(face font.Face, s string, maxWidth int) string {
	if textWidth(face, s) <= maxWidth {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if textWidth(face, string(runes)+"...") <= maxWidth {
			return string(runes) + "..."
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
