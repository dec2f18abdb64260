package dixit

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chriskillpack/dixit/pipeline"
	"github.com/tailscale/squibble"
	_ "modernc.org/sqlite"
)

//go:embed db/latest_schema.sql
var dbSchema string

var schema = &squibble.Schema{
	Current: dbSchema,
}

// MaxPoints is the most a player can score in one Dixit round.
const MaxPoints = 6

var ErrInvalidScore = errors.New("score out of range")

// DB is the result log: every generated clue and guess, and the score it
// earned at the table.
type DB struct {
	mu sync.Mutex // serializes writes within the process
	db *sql.DB

	filepath string
}

// Clue is a row of the generated_clues table.
type Clue struct {
	Id        int
	ImageHash string
	Image     []byte
	Record    *pipeline.ClueRecord
	Score     sql.NullInt64
	CreatedAt time.Time
}

// Guess is a row of the guesses table.
type Guess struct {
	Id            int
	RunID         string
	Clue          string
	Grid          []byte // JPEG of the numbered candidate grid
	GuessedImage  int
	TrueImage     sql.NullInt64
	FinalAnswer   string
	ClueRelations string
	Score         sql.NullInt64
	FromHand      bool
	CreatedAt     time.Time
}

func (db *DB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.db.Close()
}

func NewDB(ctx context.Context, fname string) (*DB, error) {
	// Open the DB but flip on the cleaner timestamps from Go. Writers from
	// other processes are waited on instead of failing with SQLITE_BUSY.
	sqldb, err := sql.Open("sqlite", fname+"?_time_format=sqlite&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if fname == ":memory:" {
		// Every connection would get its own empty database
		sqldb.SetMaxOpenConns(1)
	}
	if err := sqldb.PingContext(ctx); err != nil {
		return nil, err
	}
	if err := schema.Apply(ctx, sqldb); err != nil {
		return nil, err
	}

	return &DB{db: sqldb, filepath: fname}, nil
}

// InsertClue logs a generated clue for the card with the given hash and
// returns the row id.
func (db *DB) InsertClue(ctx context.Context, rec *pipeline.ClueRecord, imageHash string, image []byte, at time.Time) (int, error) {
	captions, err := json.Marshal(rec.Captions)
	if err != nil {
		return 0, err
	}
	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return 0, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.db.ExecContext(ctx, `
		INSERT INTO generated_clues
		(run_id, image_hash, image, captions, pre_session_interpretation, transcript,
		 session_held, interpretation, association, clue, personality, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.RunID, imageHash, image, string(captions), rec.PreSessionInterpretation, string(transcript),
		rec.SessionHeld, rec.Interpretation, rec.Association, rec.Clue, rec.Personality, at,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

// InsertGuess logs a guess together with the grid image the players saw.
func (db *DB) InsertGuess(ctx context.Context, rec *pipeline.GuessRecord, grid []byte, fromHand bool, at time.Time) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.db.ExecContext(ctx, `
		INSERT INTO guesses
		(run_id, clue, image_grid, guessed_image, final_answer, clue_relations, from_hand, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		rec.RunID, rec.Clue, grid, rec.Choice, rec.FinalAnswer, rec.ClueRelations(), fromHand, at,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

// ScoreClue records the points the clue for row id earned.
func (db *DB) ScoreClue(ctx context.Context, id, points int) error {
	if points < 0 || points > MaxPoints {
		return fmt.Errorf("%w: %d", ErrInvalidScore, points)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.db.ExecContext(ctx, "UPDATE generated_clues SET score=$1 WHERE id=$2", points, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "clue", id)
}

// ScoreGuess records the points the guess for row id earned and, when
// trueImage is not negative, which candidate was the storyteller's card.
func (db *DB) ScoreGuess(ctx context.Context, id, points, trueImage int) error {
	if points < 0 || points > MaxPoints {
		return fmt.Errorf("%w: %d", ErrInvalidScore, points)
	}
	truth := sql.NullInt64{Int64: int64(trueImage), Valid: trueImage >= 0}
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.db.ExecContext(ctx,
		"UPDATE guesses SET score=$1,true_image=COALESCE($2,true_image) WHERE id=$3",
		points, truth, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "guess", id)
}

func mustAffect(res sql.Result, what string, id int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, sql.ErrNoRows)
	}
	return nil
}

const clueColumns = `id, run_id, image_hash, image, captions, pre_session_interpretation, transcript,
	session_held, interpretation, association, clue, personality, score, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanClue(row scanner) (*Clue, error) {
	c := &Clue{Record: &pipeline.ClueRecord{}}
	var (
		hash                 sql.NullString
		captions, transcript string
	)
	err := row.Scan(
		&c.Id,
		&c.Record.RunID,
		&hash,
		&c.Image,
		&captions,
		&c.Record.PreSessionInterpretation,
		&transcript,
		&c.Record.SessionHeld,
		&c.Record.Interpretation,
		&c.Record.Association,
		&c.Record.Clue,
		&c.Record.Personality,
		&c.Score,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ImageHash = hash.String
	if err := json.Unmarshal([]byte(captions), &c.Record.Captions); err != nil {
		return nil, fmt.Errorf("clue %d captions: %w", c.Id, err)
	}
	if err := json.Unmarshal([]byte(transcript), &c.Record.Transcript); err != nil {
		return nil, fmt.Errorf("clue %d transcript: %w", c.Id, err)
	}
	return c, nil
}

// GetClue returns the clue row with the given id.
func (db *DB) GetClue(ctx context.Context, id int) (*Clue, error) {
	row := db.db.QueryRowContext(ctx, "SELECT "+clueColumns+" FROM generated_clues WHERE id=?", id)
	return scanClue(row)
}

// RecentClues returns up to limit clues, newest first.
func (db *DB) RecentClues(ctx context.Context, limit int) ([]*Clue, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT "+clueColumns+" FROM generated_clues ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clues []*Clue
	for rows.Next() {
		c, err := scanClue(rows)
		if err != nil {
			return nil, err
		}
		clues = append(clues, c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return clues, nil
}

// RecentGuesses returns up to limit guesses, newest first. The grid images
// are not loaded.
func (db *DB) RecentGuesses(ctx context.Context, limit int) ([]*Guess, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, run_id, clue, guessed_image, true_image, final_answer,
			   clue_relations, score, from_hand, created_at
		FROM guesses
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guesses []*Guess
	for rows.Next() {
		g := &Guess{}
		err := rows.Scan(
			&g.Id,
			&g.RunID,
			&g.Clue,
			&g.GuessedImage,
			&g.TrueImage,
			&g.FinalAnswer,
			&g.ClueRelations,
			&g.Score,
			&g.FromHand,
			&g.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning guesses: %w", err)
		}
		guesses = append(guesses, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating guesses: %w", err)
	}

	return guesses, nil
}

// GuessGrid returns the stored grid image of a guess.
func (db *DB) GuessGrid(ctx context.Context, id int) ([]byte, error) {
	var grid []byte
	err := db.db.QueryRowContext(ctx, "SELECT image_grid FROM guesses WHERE id=?", id).Scan(&grid)
	return grid, err
}
