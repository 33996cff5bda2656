package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	nchess "github.com/corentings/chess/v2"

	"chessdesk/internal/board"
	"chessdesk/internal/clientbuilder"
	"chessdesk/internal/config"
	"chessdesk/internal/engine"
	"chessdesk/internal/game"
	"chessdesk/internal/msgcat"
	"chessdesk/internal/obslog"
	"chessdesk/internal/render"
)

var errQuit = errors.New("quit")

type app struct {
	coord        *game.Coordinator
	renderer     *render.Renderer
	catalog      *msgcat.Catalog
	historyLimit int
}

func main() {
	levelFlag := flag.Int("level", 0, "engine difficulty 1-8, replaces a saved game's difficulty")
	colorFlag := flag.String("color", "", "play as w or b")
	twoFlag := flag.Bool("two", false, "two players at one desk, no engine turns")
	engineFlag := flag.String("engine", "", "path to a UCI engine binary")
	saveFlag := flag.String("save", "", "saved game file path")
	flag.Parse()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("init logging: %v", err)
	}
	logger := obslog.L()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	levelOverride := false
	if *levelFlag != 0 {
		cfg.DefaultDifficulty = *levelFlag
		levelOverride = true
	}
	if *colorFlag != "" {
		c := strings.ToLower(strings.TrimSpace(*colorFlag))
		if c != "w" && c != "b" {
			log.Fatalf("-color must be w or b, got %q", *colorFlag)
		}
		cfg.PlayerColor = c
	}
	if *twoFlag {
		cfg.TwoPlayer = true
	}
	if *engineFlag != "" {
		cfg.EngineBinary = *engineFlag
	}
	if *saveFlag != "" {
		cfg.SaveFile = *saveFlag
	}

	notes := make(chan game.Notification, 32)
	deps, err := clientbuilder.New(cfg, clientbuilder.Options{
		LevelOverride: levelOverride,
		OnNotify: func(n game.Notification) {
			select {
			case notes <- n:
			default:
			}
		},
	}, logger)
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := deps.Coordinator.Start(ctx); err != nil {
		log.Fatalf("start game: %v", err)
	}

	a := &app{
		coord:        deps.Coordinator,
		renderer:     render.New(),
		catalog:      msgcat.Default(),
		historyLimit: cfg.HistoryLimit,
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "chessdesk> ",
		HistoryFile:     ".chessdesk_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		log.Fatalf("init readline: %v", err)
	}
	defer rl.Close()

	fmt.Println(a.text("cli.greeting", nil, "chessdesk - type 'help' for commands"))
	a.printBoard()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		drainNotes(notes)

		rl.SetPrompt(promptFor(a.coord.View()))
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return
			}
			continue
		}
		if err == io.EOF {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := a.runCommand(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return
			}
			fmt.Println(err.Error())
		}
		drainNotes(notes)
	}
}

func (a *app) runCommand(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help":
		fmt.Println(helpText())
		return nil
	case "quit", "exit":
		return errQuit
	case "click":
		return a.handleClick(ctx, args)
	case "move":
		if len(args) < 1 {
			fmt.Println("Usage: move <san|uci>")
			return nil
		}
		return a.handleMove(ctx, args[0])
	case "board":
		a.printBoard()
		return nil
	case "status":
		a.printStatus()
		return nil
	case "hint":
		return a.handleHint(ctx)
	case "undo":
		return a.handleUndo(ctx)
	case "new":
		return a.handleNew(ctx, args)
	case "level":
		if len(args) < 1 {
			fmt.Println("Usage: level <1-8>")
			return nil
		}
		return a.handleLevel(ctx, args[0])
	case "color":
		if len(args) < 1 {
			fmt.Println("Usage: color <w|b>")
			return nil
		}
		return a.handleColor(ctx, args[0])
	case "mode":
		if len(args) < 1 {
			fmt.Println("Usage: mode <single|two>")
			return nil
		}
		return a.handleMode(ctx, args[0])
	case "snapshot":
		if len(args) < 1 {
			fmt.Println("Usage: snapshot <file.png>")
			return nil
		}
		return a.handleSnapshot(ctx, args[0])
	case "history":
		a.printHistory()
		return nil
	case "archive":
		return a.handleArchive(ctx, args)
	case "game":
		if len(args) < 1 {
			fmt.Println("Usage: game <id>")
			return nil
		}
		return a.handleGame(ctx, args[0])
	case "profile":
		return a.handleProfile(ctx)
	case "resign":
		return a.handleResign(ctx)
	default:
		// Anything else is tried as a move, so plain "e4" works.
		return a.handleMove(ctx, line)
	}
}

func (a *app) handleClick(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: click <square>")
		return nil
	}
	sq, err := board.ParseSquare(args[0])
	if err != nil {
		fmt.Printf("Bad square %q.\n", args[0])
		return nil
	}
	res, err := a.coord.HandleSquareClick(ctx, sq)
	if err != nil {
		return a.describePlayError(err)
	}
	switch res.Outcome {
	case game.ClickSelected, game.ClickReselected:
		fmt.Println(a.text("cli.selected", map[string]string{
			"Square":  res.Square.String(),
			"Targets": joinSquares(res.Targets),
		}, fmt.Sprintf("Selected %s.", res.Square)))
	case game.ClickCleared:
		fmt.Println(a.text("cli.cleared", nil, "Selection cleared."))
	case game.ClickMoved:
		a.reportMove(res.Move)
	default:
		fmt.Println(a.text("cli.no_selection", nil, "No piece selected."))
	}
	return nil
}

func (a *app) handleMove(ctx context.Context, text string) error {
	sum, err := a.coord.PlayMove(ctx, text)
	if err != nil {
		return a.describePlayError(err)
	}
	a.reportMove(sum)
	return nil
}

func (a *app) reportMove(sum *game.MoveSummary) {
	if sum == nil {
		return
	}
	fmt.Printf("Played %s.\n", sum.SAN)
	a.printBoard()
}

func (a *app) handleHint(ctx context.Context) error {
	hint, err := a.coord.Hint(ctx)
	if err != nil {
		if errors.Is(err, game.ErrNoHint) {
			fmt.Println(a.text("cli.hint_unavailable", nil, "No hint available."))
			return nil
		}
		return a.describePlayError(err)
	}
	fmt.Println(a.text("cli.hint", map[string]string{"Move": hint.Move}, "Hint: "+hint.Move))
	return nil
}

func (a *app) handleUndo(ctx context.Context) error {
	sum, err := a.coord.Undo(ctx)
	if err != nil {
		if errors.Is(err, game.ErrUndoUnavailable) {
			fmt.Println(a.text("cli.undo_unavailable", nil, "Nothing to undo yet."))
			return nil
		}
		return a.describePlayError(err)
	}
	fmt.Println(a.text("cli.undo_done", map[string]int{"Count": sum.Removed}, fmt.Sprintf("Took back %d move(s).", sum.Removed)))
	a.printBoard()
	return nil
}

func (a *app) handleNew(ctx context.Context, args []string) error {
	if len(args) >= 1 {
		return a.handleLevel(ctx, args[0])
	}
	if err := a.coord.Reset(ctx); err != nil {
		return err
	}
	a.announceNewGame()
	return nil
}

func (a *app) handleLevel(ctx context.Context, arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Printf("Bad level %q, expected 1-8.\n", arg)
		return nil
	}
	level, err := engine.ParseLevel(n)
	if err != nil {
		fmt.Println(err.Error())
		return nil
	}
	if err := a.coord.SetDifficulty(ctx, level); err != nil {
		return err
	}
	a.announceNewGame()
	return nil
}

func (a *app) handleColor(ctx context.Context, arg string) error {
	var color nchess.Color
	switch strings.ToLower(arg) {
	case "w", "white":
		color = nchess.White
	case "b", "black":
		color = nchess.Black
	default:
		fmt.Printf("Bad color %q, expected w or b.\n", arg)
		return nil
	}
	if err := a.coord.SetPlayerColor(ctx, color); err != nil {
		return err
	}
	a.announceNewGame()
	return nil
}

func (a *app) handleMode(ctx context.Context, arg string) error {
	var two bool
	switch strings.ToLower(arg) {
	case "two", "2", "pvp":
		two = true
	case "single", "1", "engine":
		two = false
	default:
		fmt.Printf("Bad mode %q, expected single or two.\n", arg)
		return nil
	}
	if err := a.coord.SetTwoPlayer(ctx, two); err != nil {
		return err
	}
	a.printStatus()
	return nil
}

func (a *app) handleSnapshot(ctx context.Context, path string) error {
	v := a.coord.View()
	pos, err := board.FromFEN(v.FEN)
	if err != nil {
		return err
	}
	opts := render.Options{
		Header:  v.GameName,
		Status:  v.Status,
		Flipped: flipped(v),
		InCheck: v.InCheck,
	}
	if v.Selected {
		sel := v.SelectedSquare
		opts.Selected = &sel
		opts.Targets = v.SelectedTargets
	}
	if v.HasLastMove {
		opts.LastMove = &render.MoveHighlight{From: v.LastMoveFrom, To: v.LastMoveTo}
	}
	data, err := a.renderer.RenderPNG(ctx, pos, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Println(a.text("cli.saved_snapshot", map[string]string{"Path": path}, "Board written to "+path))
	return nil
}

func (a *app) printHistory() {
	v := a.coord.View()
	if len(v.History) == 0 {
		fmt.Println("No moves yet.")
		return
	}
	var b strings.Builder
	for i, san := range v.History {
		if i%2 == 0 {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d.%s", i/2+1, san)
		} else {
			b.WriteByte(' ')
			b.WriteString(san)
		}
	}
	fmt.Println(b.String())
}

func (a *app) handleArchive(ctx context.Context, args []string) error {
	limit := a.historyLimit
	if len(args) >= 1 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}
	games, err := a.coord.RecentGames(ctx, limit)
	if err != nil {
		return err
	}
	if len(games) == 0 {
		fmt.Println("No archived games yet.")
		return nil
	}
	for _, g := range games {
		ended := ""
		if !g.EndedAt.IsZero() {
			ended = g.EndedAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("#%d  %-22s %-5s %-6s %-14s %3d moves  %s\n",
			g.ID, g.Name, g.Level, g.Result, g.Method, g.MoveCount, ended)
	}
	return nil
}

func (a *app) handleGame(ctx context.Context, arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Printf("Bad game id %q.\n", arg)
		return nil
	}
	g, err := a.coord.ArchivedGame(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("#%d %s - %s by %s (%s, %d moves)\n", g.ID, g.Name, g.Result, g.Method, g.Level, g.MoveCount)
	fmt.Println(g.PGN)
	return nil
}

func (a *app) handleProfile(ctx context.Context) error {
	p, err := a.coord.Profile(ctx)
	if err != nil {
		return err
	}
	if p == nil || p.GamesPlayed == 0 {
		fmt.Println("No rated games yet.")
		return nil
	}
	fmt.Printf("Rating %d  %dW-%dL-%dD over %d games\n", p.Rating, p.Wins, p.Losses, p.Draws, p.GamesPlayed)
	if p.Streak > 1 && p.StreakType != "" {
		noun := p.StreakType + "s"
		if p.StreakType == "loss" {
			noun = "losses"
		}
		fmt.Printf("Streak: %d %s\n", p.Streak, noun)
	}
	if p.LastLevel != "" {
		fmt.Printf("Last level: %s\n", p.LastLevel)
	}
	return nil
}

func (a *app) handleResign(ctx context.Context) error {
	status, err := a.coord.Resign(ctx)
	if err != nil {
		return a.describePlayError(err)
	}
	fmt.Println(a.text("cli.resigned", nil, "You resigned."))
	fmt.Println(status)
	return nil
}

func (a *app) announceNewGame() {
	v := a.coord.View()
	fmt.Println(a.text("cli.new_game", map[string]string{
		"Level": levelNumber(v.Level),
		"Color": colorLabel(v.PlayerColor),
	}, "New game."))
	a.printBoard()
}

func (a *app) printBoard() {
	v := a.coord.View()
	pos, err := board.FromFEN(v.FEN)
	if err != nil {
		fmt.Println(v.Status)
		return
	}
	fmt.Print(formatBoard(pos, flipped(v)))
	fmt.Println(v.Status)
}

func (a *app) printStatus() {
	v := a.coord.View()
	fmt.Println(v.Status)
	mode := "single-player"
	if v.TwoPlayer {
		mode = "two-player"
	}
	fmt.Printf("Game %s - level %s, you play %s, %s\n", v.GameName, levelNumber(v.Level), colorLabel(v.PlayerColor), mode)
	if v.Opening != "" {
		fmt.Printf("Opening: %s\n", v.Opening)
	}
	if v.EngineNote != "" {
		fmt.Printf("Engine: %s\n", v.EngineNote)
	}
}

func (a *app) describePlayError(err error) error {
	switch {
	case errors.Is(err, board.ErrIllegalMove):
		fmt.Println(a.text("cli.illegal", nil, "Illegal move."))
		return nil
	case errors.Is(err, game.ErrNotYourTurn), errors.Is(err, game.ErrEngineThinking):
		fmt.Println(a.text("cli.not_your_turn", nil, "It is not your turn."))
		return nil
	case errors.Is(err, game.ErrGameOver):
		fmt.Println(a.text("cli.game_over", nil, "The game is over."))
		return nil
	default:
		return err
	}
}

func (a *app) text(key string, data any, fallback string) string {
	out, err := a.catalog.Render(key, data)
	if err != nil {
		return fallback
	}
	return out
}

func drainNotes(notes <-chan game.Notification) {
	for {
		select {
		case n := <-notes:
			if n.Text != "" {
				fmt.Println("* " + n.Text)
			}
		default:
			return
		}
	}
}

func promptFor(v game.GameView) string {
	switch {
	case v.GameOver:
		return "chessdesk [over]> "
	case v.Thinking:
		return "chessdesk [engine]> "
	default:
		return fmt.Sprintf("chessdesk [%s]> ", strings.ToLower(colorLabel(v.Turn)))
	}
}

func formatBoard(pos board.Position, flip bool) string {
	var b strings.Builder
	files := "  a b c d e f g h"
	if flip {
		files = "  h g f e d c b a"
	}
	b.WriteString(files + "\n")
	for row := 0; row < 8; row++ {
		rank := 7 - row
		if flip {
			rank = row
		}
		fmt.Fprintf(&b, "%d ", rank+1)
		for col := 0; col < 8; col++ {
			file := col
			if flip {
				file = 7 - col
			}
			sq := nchess.NewSquare(nchess.FileA+nchess.File(file), nchess.Rank1+nchess.Rank(rank))
			b.WriteByte(pieceLetter(pos.PieceAt(sq)))
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d\n", rank+1)
	}
	b.WriteString(files + "\n")
	return b.String()
}

func pieceLetter(p nchess.Piece) byte {
	if p == nchess.NoPiece {
		return '.'
	}
	var letter byte
	switch p.Type() {
	case nchess.King:
		letter = 'k'
	case nchess.Queen:
		letter = 'q'
	case nchess.Rook:
		letter = 'r'
	case nchess.Bishop:
		letter = 'b'
	case nchess.Knight:
		letter = 'n'
	case nchess.Pawn:
		letter = 'p'
	default:
		return '?'
	}
	if p.Color() == nchess.White {
		letter = letter - 'a' + 'A'
	}
	return letter
}

func joinSquares(squares []nchess.Square) string {
	if len(squares) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(squares))
	for _, sq := range squares {
		parts = append(parts, sq.String())
	}
	return strings.Join(parts, " ")
}

func flipped(v game.GameView) bool {
	return !v.TwoPlayer && v.PlayerColor == nchess.Black
}

func colorLabel(c nchess.Color) string {
	if c == nchess.Black {
		return "Black"
	}
	return "White"
}

func levelNumber(level string) string {
	return strings.TrimPrefix(level, "level")
}

func helpText() string {
	return strings.Join([]string{
		"Commands:",
		"  click <square>     pick up or drop a piece (two clicks make a move)",
		"  move <san|uci>     play a move, e.g. move Nf3 or move g1f3",
		"  <san|uci>          bare moves work too",
		"  board              print the board",
		"  status             game status, level, color, mode",
		"  hint               suggest a move",
		"  undo               take back the last exchange",
		"  new [level]        start over, optionally at a new level",
		"  level <1-8>        change difficulty (starts a fresh game)",
		"  color <w|b>        switch seats (starts a fresh game)",
		"  mode <single|two>  toggle the engine opponent",
		"  snapshot <file>    write a PNG of the current position",
		"  history            moves of the current game",
		"  archive [n]        recently finished games",
		"  game <id>          show an archived game's PGN",
		"  profile            rating and record",
		"  resign             concede the game",
		"  quit               leave",
	}, "\n")
}
