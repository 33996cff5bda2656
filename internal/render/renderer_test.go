package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	nchess "github.com/corentings/chess/v2"

	"chessdesk/internal/board"
)

func mustRender(t *testing.T, r *Renderer, pos board.Position, opts Options) image.Image {
	t.Helper()
	data, err := r.RenderPNG(context.Background(), pos, opts)
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func mustReplay(t *testing.T, sans ...string) board.Position {
	t.Helper()
	pos, err := board.Replay(board.Start(), sans)
	if err != nil {
		t.Fatalf("replay %v: %v", sans, err)
	}
	return pos
}

func pixelAt(img image.Image, x, y int) (r, g, b uint8) {
	pr, pg, pb, _ := img.At(x, y).RGBA()
	return uint8(pr >> 8), uint8(pg >> 8), uint8(pb >> 8)
}

func squareCenter(sq nchess.Square, flipped bool) (x, y int) {
	rect := squareRect(sq, flipped)
	return rect.Min.X + squareSize/2, rect.Min.Y + squareSize/2
}

func TestRenderStartPositionDimensions(t *testing.T) {
	img := mustRender(t, New(), board.Start(), Options{})

	bounds := img.Bounds()
	if bounds.Dx() != canvasWidth || bounds.Dy() != canvasHeight {
		t.Fatalf("canvas = %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), canvasWidth, canvasHeight)
	}
}

func TestRenderPaintsSquarePalette(t *testing.T) {
	img := mustRender(t, New(), board.Start(), Options{})

	// d4 is empty in the start position and carries no decoration.
	x, y := squareCenter(nchess.NewSquare(nchess.FileD, nchess.Rank4), false)
	r, g, b := pixelAt(img, x, y)
	if r != darkSquare.R || g != darkSquare.G || b != darkSquare.B {
		t.Fatalf("d4 center = %d,%d,%d, want dark square %d,%d,%d", r, g, b, darkSquare.R, darkSquare.G, darkSquare.B)
	}

	x, y = squareCenter(nchess.NewSquare(nchess.FileE, nchess.Rank4), false)
	r, g, b = pixelAt(img, x, y)
	if r != lightSquare.R || g != lightSquare.G || b != lightSquare.B {
		t.Fatalf("e4 center = %d,%d,%d, want light square %d,%d,%d", r, g, b, lightSquare.R, lightSquare.G, lightSquare.B)
	}
}

func TestRenderFlippedSwapsCorners(t *testing.T) {
	renderer := New()
	plain := mustRender(t, renderer, board.Start(), Options{})
	flipped := mustRender(t, renderer, board.Start(), Options{Flipped: true})

	// The bottom-left square shows the white rook on a1 normally and the
	// black rook on h8 when flipped, so the glyph body brightness flips.
	x, y := squareCenter(nchess.NewSquare(nchess.FileA, nchess.Rank1), false)
	pr, _, _ := pixelAt(plain, x, y)
	fr, _, _ := pixelAt(flipped, x, y)
	if pr <= fr || pr-fr < 100 {
		t.Fatalf("bottom-left glyph brightness plain=%d flipped=%d, want white rook vs black rook", pr, fr)
	}
}

func TestRenderCheckTintsKingSquare(t *testing.T) {
	renderer := New()
	pos := mustReplay(t, "e4", "e5", "Qh5", "Nc6", "Qxf7+")

	calm := mustRender(t, renderer, pos, Options{})
	checked := mustRender(t, renderer, pos, Options{InCheck: true})

	// Probe a corner of e8 that the king glyph leaves uncovered.
	rect := squareRect(nchess.NewSquare(nchess.FileE, nchess.Rank8), false)
	x, y := rect.Min.X+4, rect.Min.Y+4
	cr, cg, cb := pixelAt(calm, x, y)
	tr, tg, tb := pixelAt(checked, x, y)
	if cr == tr && cg == tg && cb == tb {
		t.Fatalf("check tint did not change e8 corner pixel %d,%d,%d", tr, tg, tb)
	}
	if tr <= tg {
		t.Fatalf("check tint = %d,%d,%d, want red dominant", tr, tg, tb)
	}
}

func TestRenderSelectionAndTargets(t *testing.T) {
	renderer := New()
	pos := board.Start()
	selected := nchess.NewSquare(nchess.FileE, nchess.Rank2)
	opts := Options{
		Selected: &selected,
		Targets: []nchess.Square{
			nchess.NewSquare(nchess.FileE, nchess.Rank3),
			nchess.NewSquare(nchess.FileE, nchess.Rank4),
		},
	}

	plain := mustRender(t, renderer, pos, Options{})
	marked := mustRender(t, renderer, pos, opts)

	x, y := squareCenter(nchess.NewSquare(nchess.FileE, nchess.Rank3), false)
	pr, pg, pb := pixelAt(plain, x, y)
	mr, mg, mb := pixelAt(marked, x, y)
	if pr == mr && pg == mg && pb == mb {
		t.Fatalf("target dot did not change e3 center pixel %d,%d,%d", mr, mg, mb)
	}
}

func TestRenderLastMoveHighlight(t *testing.T) {
	renderer := New()
	pos := mustReplay(t, "e4")

	plain := mustRender(t, renderer, pos, Options{})
	marked := mustRender(t, renderer, pos, Options{LastMove: &MoveHighlight{
		From: nchess.NewSquare(nchess.FileE, nchess.Rank2),
		To:   nchess.NewSquare(nchess.FileE, nchess.Rank4),
	}})

	x, y := squareCenter(nchess.NewSquare(nchess.FileE, nchess.Rank2), false)
	pr, pg, pb := pixelAt(plain, x, y)
	mr, mg, mb := pixelAt(marked, x, y)
	if pr == mr && pg == mg && pb == mb {
		t.Fatalf("last-move highlight did not change e2 pixel %d,%d,%d", mr, mg, mb)
	}
}

func TestRenderHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().RenderPNG(ctx, board.Start(), Options{}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestSpriteCacheFillsOncePerPiece(t *testing.T) {
	renderer := New()
	mustRender(t, renderer, board.Start(), Options{})
	mustRender(t, renderer, board.Start(), Options{})

	renderer.pieces.mu.RLock()
	cached := len(renderer.pieces.cache)
	renderer.pieces.mu.RUnlock()
	if cached != 12 {
		t.Fatalf("sprite cache holds %d entries, want 12", cached)
	}
}

func TestPieceAssetNames(t *testing.T) {
	name, err := pieceAssetName(nchess.WhiteKing)
	if err != nil {
		t.Fatalf("white king asset: %v", err)
	}
	if name != "assets/pieces/wK.svg" {
		t.Fatalf("white king asset = %q", name)
	}

	name, err = pieceAssetName(nchess.BlackPawn)
	if err != nil {
		t.Fatalf("black pawn asset: %v", err)
	}
	if name != "assets/pieces/bP.svg" {
		t.Fatalf("black pawn asset = %q", name)
	}

	if _, err := pieceAssetName(nchess.NoPiece); err == nil {
		t.Fatal("expected error for NoPiece")
	}
}

func TestSanitizeSVGNormalizesStyles(t *testing.T) {
	in := []byte(`<path style="fill: #fff;stroke: #000"/>`)
	out := string(sanitizeSVG(in))
	if out != `<path style="fill:#fff;stroke:#000"/>` {
		t.Fatalf("sanitizeSVG = %q", out)
	}
}

func TestMaterialBalanceFormatting(t *testing.T) {
	if got := formatMaterialBalance(39, 39); got != "=" {
		t.Fatalf("even balance = %q", got)
	}
	if got := formatMaterialBalance(39, 30); got != "+9" {
		t.Fatalf("white ahead = %q", got)
	}
	if got := formatMaterialBalance(30, 31); got != "-1" {
		t.Fatalf("black ahead = %q", got)
	}
}
