package main

import (
	"database/sql"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newScoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Record the points a clue or guess earned at the table",
	}

	clueCmd := &cobra.Command{
		Use:   "clue <id> <points>",
		Short: "Score a generated clue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, points, err := parseScore(args)
			if err != nil {
				return err
			}
			db, err := a.database(cmd.Context())
			if err != nil {
				return err
			}
			return db.ScoreClue(cmd.Context(), id, points)
		},
	}

	var trueImage int
	guessCmd := &cobra.Command{
		Use:   "guess <id> <points>",
		Short: "Score a guess and optionally record the storyteller's card",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, points, err := parseScore(args)
			if err != nil {
				return err
			}
			db, err := a.database(cmd.Context())
			if err != nil {
				return err
			}
			return db.ScoreGuess(cmd.Context(), id, points, trueImage)
		},
	}
	guessCmd.Flags().IntVar(&trueImage, "true-image", -1, "Index of the storyteller's card among the candidates")

	cmd.AddCommand(clueCmd, guessCmd)
	return cmd
}

func parseScore(args []string) (int, int, error) {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad id %q", args[0])
	}
	points, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad points %q", args[1])
	}
	return id, points, nil
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent clues and guesses with their scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.database(ctx)
			if err != nil {
				return err
			}
			clues, err := db.RecentClues(ctx, limit)
			if err != nil {
				return err
			}
			guesses, err := db.RecentGuesses(ctx, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CLUE\tCREATED\tCARD\tPERSONALITY\tSCORE\tCLUE")
			for _, c := range clues {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					c.Id, c.CreatedAt.Format("2006-01-02 15:04"), c.ImageHash,
					c.Record.Personality, nullInt(c.Score), c.Record.Clue)
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "GUESS\tCREATED\tGUESSED\tTRUE\tSCORE\tCLUE")
			for _, g := range guesses {
				guessed := strconv.Itoa(g.GuessedImage)
				if g.FromHand {
					guessed += " (hand)"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					g.Id, g.CreatedAt.Format("2006-01-02 15:04"), guessed,
					nullInt(g.TrueImage), nullInt(g.Score), g.Clue)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of clues and guesses to list")
	return cmd
}

func nullInt(n sql.NullInt64) string {
	if !n.Valid {
		return "-"
	}
	return strconv.FormatInt(n.Int64, 10)
}
