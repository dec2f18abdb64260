package dixit

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/chriskillpack/dixit/pipeline"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(t.Context(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	return db
}

func testClueRecord(clue string) *pipeline.ClueRecord {
	return &pipeline.ClueRecord{
		Captions: pipeline.CaptionSet{
			{Model: "blip", Text: "a bird on a wire"},
			{Model: "llava", Text: "a red bird"},
		},
		PreSessionInterpretation: "a red bird sits on a wire",
		Transcript:               pipeline.Transcript{{Question: "What time is it?", Answer: "Dusk"}},
		SessionHeld:              true,
		Interpretation:           "a red bird waits on a wire at dusk",
		Association:              "patience",
		Clue:                     clue,
		Personality:              "generic",
		RunID:                    "run-" + clue,
	}
}

func TestInsertClue(t *testing.T) {
	db := newTestDB(t)

	rec := testClueRecord("waiting")
	id, err := db.InsertClue(t.Context(), rec, "00ff00ff00ff00ff", []byte("jpeg"), time.Now())
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}

	got, err := db.GetClue(t.Context(), id)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if !reflect.DeepEqual(rec, got.Record) {
		t.Errorf("Expected record %+v, got %+v", rec, got.Record)
	}
	if expected, actual := "00ff00ff00ff00ff", got.ImageHash; expected != actual {
		t.Errorf("Expected hash %q, got %q", expected, actual)
	}
	if got.Score.Valid {
		t.Errorf("Expected no score, got %d", got.Score.Int64)
	}

	_, err = db.GetClue(t.Context(), id+100)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows, got %v", err)
	}
}

func TestScoreClue(t *testing.T) {
	db := newTestDB(t)

	id, err := db.InsertClue(t.Context(), testClueRecord("waiting"), "", nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	t.Run("valid", func(t *testing.T) {
		if err := db.ScoreClue(t.Context(), id, 3); err != nil {
			t.Fatalf("Unexpected error %s", err)
		}
		got, err := db.GetClue(t.Context(), id)
		if err != nil {
			t.Fatal(err)
		}
		if expected, actual := int64(3), got.Score.Int64; !got.Score.Valid || expected != actual {
			t.Errorf("Expected score %d, got %v", expected, got.Score)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		for _, points := range []int{-1, MaxPoints + 1} {
			if err := db.ScoreClue(t.Context(), id, points); !errors.Is(err, ErrInvalidScore) {
				t.Errorf("Expected ErrInvalidScore for %d, got %v", points, err)
			}
		}
	})

	t.Run("missing row", func(t *testing.T) {
		if err := db.ScoreClue(t.Context(), id+1, 2); !errors.Is(err, sql.ErrNoRows) {
			t.Errorf("Expected sql.ErrNoRows, got %v", err)
		}
	})
}

func TestGuesses(t *testing.T) {
	db := newTestDB(t)

	rec := &pipeline.GuessRecord{
		Clue: "freedom",
		PerImage: []pipeline.CandidateReasoning{
			{Interpretation: "a cage", ClueRelation: "the cage is open"},
			{Interpretation: "a bird", ClueRelation: "the bird flies away", Precomputed: true},
		},
		FinalAnswer: "Image_1\nANSWER: 1",
		Choice:      1,
		RunID:       "run-guess",
	}

	base := time.Now().Add(-time.Hour)
	first, err := db.InsertGuess(t.Context(), rec, []byte("grid"), true, base)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	second, err := db.InsertGuess(t.Context(), rec, nil, false, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}

	if err := db.ScoreGuess(t.Context(), first, 2, 0); err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if err := db.ScoreGuess(t.Context(), second, 0, -1); err != nil {
		t.Fatalf("Unexpected error %s", err)
	}

	guesses, err := db.RecentGuesses(t.Context(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := 2, len(guesses); expected != actual {
		t.Fatalf("Expected %d guesses, got %d", expected, actual)
	}

	newest, oldest := guesses[0], guesses[1]
	if expected, actual := second, newest.Id; expected != actual {
		t.Errorf("Expected newest guess %d first, got %d", expected, actual)
	}
	if newest.TrueImage.Valid {
		t.Errorf("Expected no true image, got %d", newest.TrueImage.Int64)
	}
	if !oldest.FromHand || !oldest.TrueImage.Valid || oldest.TrueImage.Int64 != 0 {
		t.Errorf("Expected hand guess with true image 0, got %+v", oldest)
	}
	if expected, actual := "Image_0: the cage is open\nImage_1: the bird flies away", oldest.ClueRelations; expected != actual {
		t.Errorf("Expected clue relations %q, got %q", expected, actual)
	}
	if expected, actual := 1, oldest.GuessedImage; expected != actual {
		t.Errorf("Expected guessed image %d, got %d", expected, actual)
	}

	grid, err := db.GuessGrid(t.Context(), first)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := "grid", string(grid); expected != actual {
		t.Errorf("Expected grid %q, got %q", expected, actual)
	}

	if err := db.ScoreGuess(t.Context(), first, 7, 0); !errors.Is(err, ErrInvalidScore) {
		t.Errorf("Expected ErrInvalidScore, got %v", err)
	}
}

func TestRecentClues(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().Add(-time.Hour)
	for i, clue := range []string{"one", "two", "three"} {
		if _, err := db.InsertClue(t.Context(), testClueRecord(clue), "", nil, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	clues, err := db.RecentClues(t.Context(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := 2, len(clues); expected != actual {
		t.Fatalf("Expected %d clues, got %d", expected, actual)
	}
	if expected, actual := "three", clues[0].Record.Clue; expected != actual {
		t.Errorf("Expected newest clue %q, got %q", expected, actual)
	}
	if expected, actual := "two", clues[1].Record.Clue; expected != actual {
		t.Errorf("Expected clue %q, got %q", expected, actual)
	}
}

func TestConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dixit.db")

	// Two handles on one file, the second stands in for another process.
	var dbs [2]*DB
	for i := range dbs {
		db, err := NewDB(t.Context(), path)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(db.Close)
		dbs[i] = db
	}

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db := dbs[i%len(dbs)]
			id, err := db.InsertClue(t.Context(), testClueRecord(fmt.Sprintf("clue-%d", i)), "hash", []byte("jpeg"), time.Now())
			if err != nil {
				errs <- err
				return
			}
			if err := db.ScoreClue(t.Context(), id, i%(MaxPoints+1)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Unexpected error %s", err)
	}

	clues, err := dbs[0].RecentClues(t.Context(), writers*2)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := writers, len(clues); expected != actual {
		t.Errorf("Expected %d clues, got %d", expected, actual)
	}
	for _, c := range clues {
		if !c.Score.Valid {
			t.Errorf("Expected clue %d to be scored", c.Id)
		}
	}
}
