package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chriskillpack/dixit/pipeline"
	"github.com/spf13/cobra"
)

func newGuessCmd(a *app) *cobra.Command {
	var (
		clue     string
		boxes    string
		turns    int
		gridPath string
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "guess --clue <clue> <photo>...",
		Short: "Guess which card matches a clue",
		Long: `Guess which of the candidate cards matches the clue. Candidates are the
photos given, or the cards detected in a single photo with --boxes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clue == "" {
				return errors.New("--clue is required")
			}

			ctx := cmd.Context()
			d, err := a.dixit()
			if err != nil {
				return err
			}
			db, err := a.database(ctx)
			if err != nil {
				return err
			}

			cs, err := loadCards(args, boxes)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("turns") {
				turns = d.Config.GuessTurns
			}

			rec, err := d.Guess(ctx, images(cs), clue, turns, nil)
			if err != nil {
				return err
			}

			grid, err := gridJPEG(cs)
			if err != nil {
				return err
			}
			if gridPath != "" {
				if err := os.WriteFile(gridPath, grid, 0o644); err != nil {
					return err
				}
			}
			id, err := db.InsertGuess(ctx, rec, grid, false, time.Now())
			if err != nil {
				return err
			}

			return printGuess(cmd.OutOrStdout(), id, rec, jsonOut)
		},
	}

	cmd.Flags().StringVar(&clue, "clue", "", "The storyteller's clue")
	cmd.Flags().StringVar(&boxes, "boxes", "", "Card detector JSON for a photo of several cards")
	cmd.Flags().IntVar(&turns, "turns", 0, "Question answering turns per candidate (default from config)")
	cmd.Flags().StringVar(&gridPath, "grid", "", "Write the numbered candidate grid to this JPEG file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full guess record as JSON")
	return cmd
}

func printGuess(w io.Writer, id int, rec *pipeline.GuessRecord, jsonOut bool) error {
	if jsonOut {
		return json.NewEncoder(w).Encode(struct {
			Id     int                   `json:"id"`
			Record *pipeline.GuessRecord `json:"record"`
		}{id, rec})
	}

	for i, r := range rec.PerImage {
		src := ""
		if r.Precomputed {
			src = " (from hand)"
		}
		fmt.Fprintf(w, "Image_%d%s: %s\n\n", i, src, r.ClueRelation)
	}
	fmt.Fprintf(w, "%s\n\nGuess: %s\nLogged as guess %d, score it with: dixit score guess %d <points> --true-image <n>\n",
		rec.FinalAnswer, rec.ChoiceLabel(), id, id)
	return nil
}
