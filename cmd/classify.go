package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zpam/comment-moderator/pkg/model"
	"github.com/zpam/comment-moderator/pkg/profiler"
)

var (
	classifyVerbose bool
	classifyProfile bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify comments that have no class yet or are unsure",
	Long: `Run automatic classification over every top-level comment without a
classification or currently marked unsure. Nothing is trained; comments that
fail individually are skipped and reported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		var prof *profiler.Profiler
		if classifyProfile {
			prof = profiler.New()
			rt.moderator.SetProfiler(prof)
		}

		report, err := rt.moderator.ClassifyPending(ctx)
		if err != nil {
			if report != nil && report.Total > 0 {
				fmt.Printf("⚠️  Stopped after %d comments\n", report.Total)
			}
			return fmt.Errorf("batch classification failed: %w", err)
		}

		fmt.Printf("🧹 Classified %d comments in %v\n", report.Total, report.Duration)
		for _, class := range model.Classes {
			fmt.Printf("  %-9s %d\n", class.String()+":", report.ByClass[class])
		}

		if len(report.Failures) > 0 {
			fmt.Printf("\n⚠️  Skipped %d comments\n", len(report.Failures))
			if classifyVerbose {
				ids := make([]int64, 0, len(report.Failures))
				for id := range report.Failures {
					ids = append(ids, id)
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
				for _, id := range ids {
					fmt.Printf("  #%d: %s\n", id, report.Failures[id])
				}
			}
		}

		if prof != nil {
			fmt.Println()
			prof.WriteReport(os.Stdout)
		}

		return nil
	},
}

func init() {
	classifyCmd.Flags().BoolVarP(&classifyVerbose, "verbose", "v", false, "List skipped comments")
	classifyCmd.Flags().BoolVar(&classifyProfile, "profile", false, "Print per-step timings")
}
