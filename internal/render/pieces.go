package render

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed assets/pieces/*.svg
var pieceAssets embed.FS

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

// pieceRasterizer turns the embedded SVG glyphs into RGBA sprites and
// memoizes them per piece and target size.
type pieceRasterizer struct {
	mu    sync.RWMutex
	cache map[pieceCacheKey]*image.RGBA
}

func newPieceRasterizer() *pieceRasterizer {
	return &pieceRasterizer{cache: make(map[pieceCacheKey]*image.RGBA)}
}

func (p *pieceRasterizer) sprite(piece nchess.Piece, size int) (*image.RGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("render: invalid sprite size %d", size)
	}

	key := pieceCacheKey{piece: piece, size: size}
	p.mu.RLock()
	cached, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	img, err := rasterizePiece(piece, size)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[key] = img
	p.mu.Unlock()
	return img, nil
}

func rasterizePiece(piece nchess.Piece, size int) (*image.RGBA, error) {
	name, err := pieceAssetName(piece)
	if err != nil {
		return nil, err
	}

	data, err := pieceAssets.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("render: read piece asset %s: %w", name, err)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("render: parse piece asset %s: %w", name, err)
	}

	icon.SetTarget(0, 0, float64(size), float64(size))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}

func pieceAssetName(piece nchess.Piece) (string, error) {
	var side byte
	switch piece.Color() {
	case nchess.White:
		side = 'w'
	case nchess.Black:
		side = 'b'
	default:
		return "", fmt.Errorf("render: piece %v has no color", piece)
	}

	var kind byte
	switch piece.Type() {
	case nchess.King:
		kind = 'K'
	case nchess.Queen:
		kind = 'Q'
	case nchess.Rook:
		kind = 'R'
	case nchess.Bishop:
		kind = 'B'
	case nchess.Knight:
		kind = 'N'
	case nchess.Pawn:
		kind = 'P'
	default:
		return "", fmt.Errorf("render: piece %v has no glyph", piece)
	}

	return fmt.Sprintf("assets/pieces/%c%c.svg", side, kind), nil
}
