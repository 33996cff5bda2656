package main

import (
	"context"
	"flag"
	"log"
	"time"

	"chessdesk/internal/config"
	"chessdesk/internal/engine"
)

func main() {
	engineFlag := flag.String("engine", "", "path to a UCI engine binary (overrides STOCKFISH_PATH)")
	levelFlag := flag.Int("level", 4, "difficulty preset to search with")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *engineFlag != "" {
		cfg.EngineBinary = *engineFlag
	}
	if cfg.EngineBinary == "" && cfg.EngineURL == "" {
		log.Fatal("STOCKFISH_PATH or ENGINE_URL is required")
	}

	adapter, err := engine.NewAdapter(engine.Config{
		BinaryPath: cfg.EngineBinary,
		BridgeURL:  cfg.EngineURL,
		BookPath:   cfg.BookPath,
	})
	if err != nil {
		log.Fatalf("engine init error: %v", err)
	}
	defer adapter.Close()

	pctx, pcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pcancel()
	name, err := adapter.Probe(pctx)
	if err != nil {
		log.Fatalf("probe error: %v", err)
	}
	log.Printf("engine ok: %s", name)

	level, err := engine.ParseLevel(*levelFlag)
	if err != nil {
		log.Fatalf("level error: %v", err)
	}

	ectx, ecancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer ecancel()
	res, err := adapter.Evaluate(ectx, engine.Request{Level: level, FEN: "startpos"})
	if err != nil {
		log.Fatalf("evaluate error: %v", err)
	}
	log.Printf("bestmove %s (eval %+d cp, book=%v, took %s)", res.Move, res.EvalCP, res.BookMove, res.Duration.Round(time.Millisecond))
	if res.EngineBest != "" && res.EngineBest != res.Move {
		log.Printf("engine preferred %s before move selection", res.EngineBest)
	}
}
