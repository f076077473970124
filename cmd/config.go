package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zpam/comment-moderator/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  `Generate and manage moderator configuration files`,
}

var configGenCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Long:  `Generate a default configuration file with all options`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := "config.yaml"
		if len(args) > 0 {
			configPath = args[0]
		}

		if _, err := os.Stat(configPath); err == nil {
			overwrite, _ := cmd.Flags().GetBool("force")
			if !overwrite {
				return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
			}
		}

		if err := config.DefaultConfig().SaveConfig(configPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("✅ Configuration file generated: %s\n", configPath)
		fmt.Printf("📝 Edit the file to choose the database and classifier backend\n")
		fmt.Printf("🚀 Use 'moderator serve --config %s' to use the configuration\n", configPath)

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate a configuration file for syntax and logical errors`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := args[0]

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("❌ Configuration validation failed: %w", err)
		}

		warnings := validateConfigLogic(cfg)

		fmt.Printf("✅ Configuration is valid: %s\n", configPath)

		if len(warnings) > 0 {
			fmt.Printf("\n⚠️  Warnings:\n")
			for _, warning := range warnings {
				fmt.Printf("  - %s\n", warning)
			}
		}

		fmt.Printf("\n📊 Configuration Summary:\n")
		fmt.Printf("  Classifier backend: %s\n", cfg.Moderator.Classifier)
		fmt.Printf("  Database: %s\n", cfg.Database.Driver)
		fmt.Printf("  Cutoffs: ham < %.2f, spam > %.2f\n", cfg.Moderator.HamCutoff, cfg.Moderator.SpamCutoff)
		fmt.Printf("  Abuse cutoff: %d down votes\n", cfg.Moderator.AbuseCutoff)

		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [config-file]",
	Short: "Show current configuration",
	Long:  `Display the effective configuration, including environment overrides`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if path != "" {
			fmt.Printf("Configuration: %s\n\n", path)
		} else {
			fmt.Printf("Default Configuration:\n\n")
		}

		fmt.Printf("🎯 Moderation:\n")
		fmt.Printf("  Classifier backend: %s\n", cfg.Moderator.Classifier)
		fmt.Printf("  Ham cutoff: %.2f\n", cfg.Moderator.HamCutoff)
		fmt.Printf("  Spam cutoff: %.2f\n", cfg.Moderator.SpamCutoff)
		fmt.Printf("  Abuse cutoff: %d\n", cfg.Moderator.AbuseCutoff)
		fmt.Printf("  Realtime classification: %v\n", cfg.Moderator.RealtimeClassification)
		fmt.Printf("  Reply before comment: %v\n", cfg.Moderator.ReplyBeforeComment)
		fmt.Printf("  Train sample count: %d\n", cfg.Moderator.TrainSampleCount)

		fmt.Printf("\n🗄️  Storage:\n")
		fmt.Printf("  Database: %s (%s)\n", cfg.Database.Driver, cfg.Database.DSN)
		fmt.Printf("  Redis: %s db=%d prefix=%q\n", cfg.Redis.RedisURL, cfg.Redis.DatabaseNum, cfg.Redis.KeyPrefix)

		fmt.Printf("\n🧠 Learning:\n")
		fmt.Printf("  Token length: %d-%d\n", cfg.Learning.MinTokenLength, cfg.Learning.MaxTokenLength)
		fmt.Printf("  Unknown word prob: %.2f (strength %.2f)\n", cfg.Learning.UnknownWordProb, cfg.Learning.UnknownWordStrength)
		fmt.Printf("  Minimum prob strength: %.2f\n", cfg.Learning.MinimumProbStrength)
		fmt.Printf("  Max discriminators: %d\n", cfg.Learning.MaxDiscriminators)

		fmt.Printf("\n⚡ Server:\n")
		fmt.Printf("  Address: %s\n", cfg.Server.Address)
		fmt.Printf("  Timeouts: read %v, write %v, shutdown %v\n",
			cfg.Server.ReadTimeout(), cfg.Server.WriteTimeout(), cfg.Server.ShutdownGrace())
		fmt.Printf("  Vote workers: %d (queue %d)\n", cfg.Worker.Workers, cfg.Worker.QueueSize)

		return nil
	},
}

// validateConfigLogic reports settings that are valid but likely unintended
func validateConfigLogic(cfg *config.Config) []string {
	var warnings []string

	if cfg.Moderator.SpamCutoff-cfg.Moderator.HamCutoff < 0.1 {
		warnings = append(warnings, "Ham and spam cutoffs are very close - almost nothing will be unsure")
	}

	if cfg.Moderator.AbuseCutoff == 1 {
		warnings = append(warnings, "Abuse cutoff is 1 - a single down vote reports a comment")
	}

	if cfg.Moderator.Classifier == "redis" && cfg.Redis.KeyPrefix == "" {
		warnings = append(warnings, "Redis key prefix is empty - 'train' will unlink every key in the database")
	}

	if cfg.Database.Driver == "sqlite" && cfg.Worker.Workers > 4 {
		warnings = append(warnings, "SQLite serializes writes - more than 4 vote workers will only queue on the database")
	}

	if cfg.Moderator.TrainSampleCount < 100 {
		warnings = append(warnings, "Small training sample - scores will be unreliable")
	}

	return warnings
}

func init() {
	configCmd.AddCommand(configGenCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configGenCmd.Flags().Bool("force", false, "Overwrite existing config file")
}
