package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/chriskillpack/dixit/pipeline"
	"github.com/spf13/cobra"
)

func newClueCmd(a *app) *cobra.Command {
	var (
		boxes       string
		cardIndex   int
		personality string
		turns       int
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "clue <photo>",
		Short: "Compose a clue for a card",
		Long: `Compose a clue for the card in photo. With --boxes the photo shows several
cards, the detected cards are cropped and --card picks one (random when
omitted).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if cardIndex < 0 {
				cardIndex = rand.IntN(len(cs))
			}
			if cardIndex >= len(cs) {
				return fmt.Errorf("card %d requested, %d detected", cardIndex, len(cs))
			}
			c := cs[cardIndex]

			if !cmd.Flags().Changed("personality") {
				personality = d.Config.Personality
			}
			if !cmd.Flags().Changed("turns") {
				turns = d.Config.ClueTurns
			}

			rec, err := d.ComposeClue(ctx, c.data, personality, turns)
			if err != nil {
				return err
			}
			id, err := db.InsertClue(ctx, rec, c.hash, c.data, time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(struct {
					Id     int                  `json:"id"`
					Card   int                  `json:"card"`
					Record *pipeline.ClueRecord `json:"record"`
				}{id, cardIndex, rec})
			}
			fmt.Fprintf(out, "Card %d (%s)\nClue: %s\nLogged as clue %d, score it with: dixit score clue %d <points>\n",
				cardIndex, c.path, rec.Clue, id, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&boxes, "boxes", "", "Card detector JSON for a photo of several cards")
	cmd.Flags().IntVar(&cardIndex, "card", -1, "Detected card to describe (default random)")
	cmd.Flags().StringVar(&personality, "personality", "", "Personality the clue is written with")
	cmd.Flags().IntVar(&turns, "turns", 0, "Question answering turns (default from config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full clue record as JSON")
	return cmd
}
