package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chriskillpack/dixit/gamestate"
	"github.com/chriskillpack/dixit/pipeline"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newHandCmd(a *app) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "hand",
		Short: "Manage the cards in a player's hand",
		Long: `The hand holds the clue records of a player's cards so that guessing among
them later skips captioning and questioning.`,
	}
	cmd.PersistentFlags().StringVarP(&user, "user", "u", os.Getenv("USER"), "Player whose hand to use")

	cmd.AddCommand(
		newHandAddCmd(a, &user),
		newHandShowCmd(a, &user),
		newHandDelCmd(a, &user),
		newHandResetCmd(a, &user),
		newHandUsersCmd(a),
		newHandGuessCmd(a, &user),
	)
	return cmd
}

func newHandAddCmd(a *app, user *string) *cobra.Command {
	var (
		boxes string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "add <photo>...",
		Short: "Describe cards and add them to the hand",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.dixit()
			if err != nil {
				return err
			}
			store, err := a.hands()
			if err != nil {
				return err
			}

			cs, err := loadCards(args, boxes)
			if err != nil {
				return err
			}
			hand, err := store.Load(*user)
			if err != nil {
				return err
			}
			known := map[string]*pipeline.ClueRecord{}
			for _, c := range hand.Cards {
				known[c.Hash] = c.Record
			}

			bar := progressbar.NewOptions(
				len(cs),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("Describing cards"),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionShowCount(),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(cmd.ErrOrStderr()) }),
			)

			added := make([]gamestate.Card, 0, len(cs))
			for _, c := range cs {
				rec := known[c.hash]
				if rec == nil || force {
					rec, err = d.ComposeClue(ctx, c.data, d.Config.Personality, d.Config.ClueTurns)
					if err != nil {
						return fmt.Errorf("describing %s: %w", c.path, err)
					}
				}
				added = append(added, gamestate.Card{Hash: c.hash, ImagePath: c.path, Record: rec})
				bar.Add(1)
			}
			bar.Finish()

			hand, err = store.Update(*user, func(h *gamestate.Hand) error {
				for _, c := range added {
					h.Add(c)
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s holds %d cards\n", *user, hand.Len())
			return nil
		},
	}

	cmd.Flags().StringVar(&boxes, "boxes", "", "Card detector JSON for a photo of several cards")
	cmd.Flags().BoolVar(&force, "force", false, "Describe cards again even when already in the hand")
	return cmd
}

func newHandShowCmd(a *app, user *string) *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the cards in the hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.hands()
			if err != nil {
				return err
			}
			hand, err := store.Load(*user)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if hand.Len() == 0 {
				fmt.Fprintf(out, "%s holds no cards\n", *user)
				return nil
			}
			for i, c := range hand.Cards {
				clue := "(not described)"
				if c.Record != nil {
					clue = c.Record.Clue
				}
				fmt.Fprintf(out, "%d  %s  %s  %s\n", i, c.Hash, c.ImagePath, clue)
				if detailed && c.Record != nil {
					data, err := yaml.Marshal(c.Record)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\n", data)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "Print the full description of every card")
	return cmd
}

// parseIndices parses a comma separated list of card indices, e.g. "0,2".
func parseIndices(args []string) ([]int, error) {
	var out []int
	for _, arg := range args {
		for f := range strings.SplitSeq(arg, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			i, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("bad card index %q", f)
			}
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no card indices given")
	}
	return out, nil
}

func newHandDelCmd(a *app, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "del <index>[,<index>...]",
		Short: "Remove cards from the hand",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			indices, err := parseIndices(args)
			if err != nil {
				return err
			}
			store, err := a.hands()
			if err != nil {
				return err
			}
			hand, err := store.Update(*user, func(h *gamestate.Hand) error {
				return h.Remove(indices...)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s holds %d cards\n", *user, hand.Len())
			return nil
		},
	}
}

func newHandResetCmd(a *app, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Empty the hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.hands()
			if err != nil {
				return err
			}
			if err := store.Reset(*user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s holds no cards\n", *user)
			return nil
		},
	}
}

func newHandUsersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the players that have a hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.hands()
			if err != nil {
				return err
			}
			users, err := store.Users()
			if err != nil {
				return err
			}
			for _, u := range users {
				hand, err := store.Load(u)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d cards\n", u, hand.Len())
			}
			return nil
		},
	}
}

func newHandGuessCmd(a *app, user *string) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "guess <clue>",
		Short: "Pick the card from the hand that best matches a clue",
		Args:  cobra.ExactArgs(1),
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
			store, err := a.hands()
			if err != nil {
				return err
			}
			hand, err := store.Load(*user)
			if err != nil {
				return err
			}
			if hand.Len() == 0 {
				return fmt.Errorf("%s holds no cards", *user)
			}

			cs := make([]card, hand.Len())
			for i, path := range hand.ImagePaths() {
				c, err := readCard(path)
				if err != nil {
					return err
				}
				cs[i] = *c
			}

			rec, err := d.Guess(ctx, images(cs), args[0], d.Config.GuessTurns, hand.Records())
			if err != nil {
				return err
			}
			grid, err := gridJPEG(cs)
			if err != nil {
				return err
			}
			id, err := db.InsertGuess(ctx, rec, grid, true, time.Now())
			if err != nil {
				return err
			}
			return printGuess(cmd.OutOrStdout(), id, rec, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full guess record as JSON")
	return cmd
}
