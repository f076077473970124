package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zpam/comment-moderator/pkg/config"
	"github.com/zpam/comment-moderator/pkg/learning"
	"github.com/zpam/comment-moderator/pkg/model"
	"github.com/zpam/comment-moderator/pkg/store"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show classifier and dependency status",
	Long: `Display the configured backends, whether the database and Redis are
reachable, how many documents the classifier was trained on and how many
comments carry each class.`,
	RunE: runStatus,
}

// SystemStatus holds all status information
type SystemStatus struct {
	ConfigFile   string           `json:"config_file,omitempty"`
	Classifier   ClassifierStatus `json:"classifier"`
	Database     DependencyCheck  `json:"database"`
	Redis        DependencyCheck  `json:"redis"`
	Classes      map[string]int   `json:"classes,omitempty"`
	Thresholds   ThresholdStatus  `json:"thresholds"`
	CollectedAt  time.Time        `json:"collected_at"`
	HealthIssues []string         `json:"health_issues,omitempty"`
}

// ClassifierStatus describes the word statistics backend
type ClassifierStatus struct {
	Backend     string `json:"backend"`
	Connected   bool   `json:"connected"`
	SpamLearned int    `json:"spam_learned"`
	HamLearned  int    `json:"ham_learned"`
}

// DependencyCheck holds the result of a reachability check
type DependencyCheck struct {
	Available bool   `json:"available"`
	Status    string `json:"status"`
}

// ThresholdStatus echoes the active cutoffs
type ThresholdStatus struct {
	HamCutoff   float64 `json:"ham_cutoff"`
	SpamCutoff  float64 `json:"spam_cutoff"`
	AbuseCutoff int     `json:"abuse_cutoff"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := collectSystemStatus(ctx, cfg)

	if statusJSON {
		return printStatusJSON(status)
	}
	printStatusDashboard(status)
	return nil
}

func collectSystemStatus(ctx context.Context, cfg *config.Config) *SystemStatus {
	status := &SystemStatus{
		ConfigFile: configFile,
		Classifier: ClassifierStatus{Backend: cfg.Moderator.Classifier},
		Thresholds: ThresholdStatus{
			HamCutoff:   cfg.Moderator.HamCutoff,
			SpamCutoff:  cfg.Moderator.SpamCutoff,
			AbuseCutoff: cfg.Moderator.AbuseCutoff,
		},
		CollectedAt: time.Now(),
	}

	status.Redis = checkRedisConnection(ctx, cfg.Redis.RedisURL, cfg.Redis.DatabaseNum)

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, zap.NewNop())
	if err != nil {
		status.Database = DependencyCheck{Status: err.Error()}
		status.HealthIssues = append(status.HealthIssues, "database unreachable")
		return status
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		status.Database = DependencyCheck{Status: err.Error()}
		status.HealthIssues = append(status.HealthIssues, "database schema could not be migrated")
		return status
	}
	status.Database = DependencyCheck{Available: true, Status: fmt.Sprintf("Connected (%s)", cfg.Database.Driver)}

	if counts, err := db.ClassCounts(ctx); err == nil {
		status.Classes = make(map[string]int, len(counts))
		for class, n := range counts {
			status.Classes[class.String()] = n
		}
	}

	words, err := learning.DefaultRegistry().Open(ctx, learning.Backend(cfg.Moderator.Classifier), learning.Deps{
		DB:    db.X(),
		Redis: redisConfig(cfg),
	})
	if err != nil {
		status.HealthIssues = append(status.HealthIssues, fmt.Sprintf("classifier backend unavailable: %v", err))
		return status
	}
	defer words.Close()

	state, err := words.State(ctx)
	if err != nil {
		status.HealthIssues = append(status.HealthIssues, fmt.Sprintf("classifier state unreadable: %v", err))
		return status
	}
	status.Classifier.Connected = true
	status.Classifier.SpamLearned = state.SpamCount
	status.Classifier.HamLearned = state.HamCount

	if state.SpamCount == 0 || state.HamCount == 0 {
		status.HealthIssues = append(status.HealthIssues, "classifier needs both spam and ham training; run 'moderator train'")
	}
	return status
}

func checkRedisConnection(ctx context.Context, url string, db int) DependencyCheck {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return DependencyCheck{Status: fmt.Sprintf("Invalid URL: %v", err)}
	}
	opt.DB = db

	client := redis.NewClient(opt)
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return DependencyCheck{Status: fmt.Sprintf("Not reachable at %s", opt.Addr)}
	}
	return DependencyCheck{Available: true, Status: fmt.Sprintf("Connected to %s", opt.Addr)}
}

func printStatusDashboard(status *SystemStatus) {
	fmt.Printf("🛡️  Comment Moderator Status\n")
	fmt.Printf("═══════════════════════════════════════\n")
	if status.ConfigFile != "" {
		fmt.Printf("📝 Config: %s\n", status.ConfigFile)
	}

	fmt.Printf("\n🧠 Classifier:\n")
	fmt.Printf("  Backend: %s\n", status.Classifier.Backend)
	if status.Classifier.Connected {
		fmt.Printf("  Trained spam: %d\n", status.Classifier.SpamLearned)
		fmt.Printf("  Trained ham: %d\n", status.Classifier.HamLearned)
	} else {
		fmt.Printf("  ❌ Not connected\n")
	}
	fmt.Printf("  Cutoffs: ham < %.2f, spam > %.2f, abuse >= %d down votes\n",
		status.Thresholds.HamCutoff, status.Thresholds.SpamCutoff, status.Thresholds.AbuseCutoff)

	fmt.Printf("\n🔌 Dependencies:\n")
	printDependency("Database", status.Database)
	printDependency("Redis", status.Redis)

	if len(status.Classes) > 0 {
		fmt.Printf("\n📊 Classified comments:\n")
		for _, class := range append([]model.Class{model.ClassNone}, model.Classes...) {
			if n, ok := status.Classes[class.String()]; ok {
				fmt.Printf("  %-9s %d\n", class.String()+":", n)
			}
		}
	}

	if len(status.HealthIssues) > 0 {
		fmt.Printf("\n⚠️  Issues:\n")
		for _, issue := range status.HealthIssues {
			fmt.Printf("  - %s\n", issue)
		}
	} else {
		fmt.Printf("\n✅ Healthy\n")
	}
}

func printDependency(name string, dep DependencyCheck) {
	icon := "❌"
	if dep.Available {
		icon = "✅"
	}
	fmt.Printf("  %s %s: %s\n", icon, name, dep.Status)
}

func printStatusJSON(status *SystemStatus) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
}
