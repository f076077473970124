package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	trainSampleCount int
	trainYes         bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Retrain the classifier from removed and kept comments",
	Long: `Reset all classifier statistics and classifications, then train on a
random sample of removed comments as spam and kept comments as ham.

This discards every existing classification.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		sampleCount := trainSampleCount
		if sampleCount == 0 {
			sampleCount = rt.cfg.Moderator.TrainSampleCount
		}

		fmt.Printf("🧠 Classifier Training\n")
		fmt.Printf("═══════════════════════════════════════\n")
		fmt.Printf("🗄️  Backend: %s\n", rt.cfg.Moderator.Classifier)
		fmt.Printf("🎯 Samples: up to %d spam and %d ham comments\n\n", sampleCount, sampleCount)

		if !trainYes && !confirm("This clears all classifier data and classifications. Continue? [y/N] ") {
			fmt.Println("Aborted.")
			return nil
		}

		report, err := rt.moderator.Retrain(ctx, sampleCount, func(done, total int) {
			if done%100 == 0 || done == total {
				fmt.Print(".")
			}
		})
		fmt.Println()
		if err != nil {
			return fmt.Errorf("training failed: %w", err)
		}

		total := report.Spam + report.Ham
		fmt.Printf("\n🎉 Training Complete!\n")
		fmt.Printf("📊 Spam comments: %d\n", report.Spam)
		fmt.Printf("📊 Ham comments: %d\n", report.Ham)
		fmt.Printf("⏱️  Time taken: %v\n", report.Duration)
		if secs := report.Duration.Seconds(); secs > 0 {
			fmt.Printf("📈 Rate: %.0f comments/second\n", float64(total)/secs)
		}

		return nil
	},
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func init() {
	trainCmd.Flags().IntVarP(&trainSampleCount, "sample-count", "n", 0, "Comments per class to train on (default from config)")
	trainCmd.Flags().BoolVarP(&trainYes, "yes", "y", false, "Do not ask for confirmation")
}
