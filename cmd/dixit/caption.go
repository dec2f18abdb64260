package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCaptionCmd(a *app) *cobra.Command {
	var (
		boxes     string
		interpret bool
	)

	cmd := &cobra.Command{
		Use:   "caption <photo>...",
		Short: "Caption cards with every ensemble member",
		Long: `Caption each card with every member of the captioner ensemble. With
--interpret the captions are also merged into one interpretation. Nothing is
logged.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.dixit()
			if err != nil {
				return err
			}
			cs, err := loadCards(args, boxes)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range cs {
				captions, err := d.Ensemble().CaptionAll(ctx, c.data)
				if err != nil {
					return fmt.Errorf("captioning %s: %w", c.path, err)
				}
				fmt.Fprintf(out, "%s (%s)\n%s\n", c.path, c.hash, captions)
				if interpret {
					text, err := d.Synthesizer().FromCaptions(ctx, captions)
					if err != nil {
						return fmt.Errorf("interpreting %s: %w", c.path, err)
					}
					fmt.Fprintf(out, "Interpretation: %s\n", text)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&boxes, "boxes", "", "Card detector JSON for a photo of several cards")
	cmd.Flags().BoolVar(&interpret, "interpret", false, "Also merge the captions into one interpretation")
	return cmd
}
