package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ruleflatten/internal/config"
	"ruleflatten/internal/flatten"
	"ruleflatten/internal/store"
)

const version = "0.4.2"

var (
	// Global flags
	configPath         string
	debug              bool
	dryRun             bool
	prettyPrint        bool
	projects           []int
	saveRules          bool
	outputDir          string
	rewriteProjectOnly bool

	// Logger
	logger *zap.Logger
)

// rootCmd converts team-level rule customizations to project-level rules.
var rootCmd = &cobra.Command{
	Use:   "ruleflatten",
	Short: "Flatten team-level rule customizations into project-level rules",
	Long: `ruleflatten reconciles the two-tier (team and project) custom-rule
configuration of a rule-management service into a single flattened
project-level configuration.

For every project it computes the effective override chain of each rule name
(project scope first, then ancestor teams nearest to farthest), composes the
chain into a single rule body, writes the resulting project-owned rule groups
back to the service and verifies the write.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = buildLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runFlatten,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ruleflatten version %s\n", version)
	},
}

// initCmd writes a default config file for editing.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file %s already exists", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configPath)
		return nil
	},
}

func runFlatten(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	exportDir := cfg.Export.Dir
	if outputDir != "" {
		exportDir = outputDir
	}

	client := store.NewClient(cfg.Server.BaseURL, cfg.Server.Token, cfg.GetServerTimeout(), logger)
	pipeline := flatten.New(client, logger, flatten.Options{
		DryRun:             dryRun,
		PrettyPrint:        prettyPrint,
		SaveRules:          saveRules,
		ExportDir:          exportDir,
		Projects:           projects,
		RewriteProjectOnly: rewriteProjectOnly,
	})

	result, err := pipeline.Run(cmd.Context())
	if err != nil {
		return err
	}

	// Verification mismatches are diagnostic only: the write already
	// happened, so the run still exits zero.
	if result.Verification != nil && !result.Verification.Clean() {
		logger.Warn("Run finished with verification mismatches",
			zap.Int("groups_failed", result.Verification.GroupsFailed),
			zap.Int("rules_failed", result.Verification.RulesFailed))
	}
	return nil
}

// buildLogger configures zap for stderr plus a dated log file.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()

	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
		level = parsed
	}
	if debug {
		level = zapcore.DebugLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logFile := filepath.Join(cfg.Logging.Dir,
		fmt.Sprintf("ruleflatten-%s.log", time.Now().Format("2006-01-02")))
	zapCfg.OutputPaths = []string{"stderr", logFile}

	return zapCfg.Build()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "ruleflatten.yaml", "Config file path (YAML)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output")

	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute but do not write or verify")
	rootCmd.Flags().BoolVar(&prettyPrint, "pretty-print", false, "Print the computed rule groups to stdout")
	rootCmd.Flags().IntSliceVarP(&projects, "project", "p", nil, "Only flatten rules for the given project id (repeatable)")
	rootCmd.Flags().BoolVarP(&saveRules, "save-rules", "s", false, "Write the final body of each rule to a local file")
	rootCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for --save-rules output (default from config)")
	rootCmd.Flags().BoolVar(&rewriteProjectOnly, "rewrite-project-only", false,
		"Also re-emit rules customized only at project level (default: skip them)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
