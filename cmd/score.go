package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zpam/comment-moderator/pkg/learning"
	"github.com/zpam/comment-moderator/pkg/model"
)

var scoreClues int

var scoreCmd = &cobra.Command{
	Use:   "score [text]",
	Short: "Score a piece of text without storing anything",
	Long:  `Score text with the trained classifier and show the tokens that decided it`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		text := strings.Join(args, " ")

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		start := time.Now()
		score, err := rt.classifier.Score(ctx, text)
		duration := time.Since(start)

		if errors.Is(err, learning.ErrInsufficientTrainingData) {
			fmt.Printf("Classification: %s (classifier has not been trained)\n", model.ClassUnsure)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to score text: %w", err)
		}

		class := model.ClassUnsure
		switch {
		case score < rt.cfg.Moderator.HamCutoff:
			class = model.ClassHam
		case score > rt.cfg.Moderator.SpamCutoff:
			class = model.ClassSpam
		}

		fmt.Printf("Score Results:\n")
		fmt.Printf("Score: %.4f\n", score)
		fmt.Printf("Classification: %s (ham < %.2f, spam > %.2f)\n", class, rt.cfg.Moderator.HamCutoff, rt.cfg.Moderator.SpamCutoff)
		fmt.Printf("Processing time: %.2fms\n", float64(duration.Nanoseconds())/1e6)

		if scoreClues > 0 {
			clues, err := rt.classifier.Clues(ctx, text)
			if err != nil {
				return err
			}
			if len(clues) > scoreClues {
				clues = clues[:scoreClues]
			}
			if len(clues) > 0 {
				fmt.Printf("\nStrongest clues:\n")
				for _, clue := range clues {
					fmt.Printf("  %-16s %.4f  (spam %d, ham %d)\n", clue.Token, clue.Prob, clue.Info.SpamCount, clue.Info.HamCount)
				}
			}
		}

		return nil
	},
}

func init() {
	scoreCmd.Flags().IntVar(&scoreClues, "clues", 10, "Number of clues to show (0 to hide)")
}
