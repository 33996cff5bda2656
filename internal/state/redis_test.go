package state

import (
	"context"
	"encoding/json"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := NewRedisStore("redis://"+mr.Addr()+"/0", "")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func sampleRecord() Record {
	return Record{
		FEN:         "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
		MoveHistory: []string{"e4"},
		Difficulty:  3,
		PlayerColor: "w",
		IsTwoPlayer: false,
	}
}

func TestRedisRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	want := sampleRecord()
	if rec.FEN != want.FEN || rec.Difficulty != want.Difficulty || rec.PlayerColor != want.PlayerColor || rec.IsTwoPlayer != want.IsTwoPlayer {
		t.Fatalf("record mismatch: %+v", rec)
	}
	if len(rec.MoveHistory) != 1 || rec.MoveHistory[0] != "e4" {
		t.Fatalf("history mismatch: %v", rec.MoveHistory)
	}
}

func TestRedisLoadAbsent(t *testing.T) {
	store, _ := newTestStore(t)
	if _, ok, err := store.Load(context.Background()); ok || err != nil {
		t.Fatalf("empty store should read absent: ok=%v err=%v", ok, err)
	}
}

func TestRedisMalformedReadsAsAbsent(t *testing.T) {
	store, mr := newTestStore(t)
	if err := mr.Set(defaultRedisKey, "{not json"); err != nil {
		t.Fatalf("seed garbage: %v", err)
	}
	rec, ok, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("malformed record must not error, got %v", err)
	}
	if ok {
		t.Fatalf("malformed record should read absent, got %+v", rec)
	}
}

func TestRedisClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := store.Load(ctx); ok {
		t.Fatalf("record should be gone after Clear")
	}
}

func TestRecordWireKeys(t *testing.T) {
	raw, err := json.Marshal(sampleRecord())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"fen", "moveHistory", "difficulty", "playerColor", "isTwoPlayer"} {
		if _, present := m[key]; !present {
			t.Fatalf("wire key %q missing in %s", key, raw)
		}
	}
	if len(m) != 5 {
		t.Fatalf("unexpected extra wire keys in %s", raw)
	}
}
