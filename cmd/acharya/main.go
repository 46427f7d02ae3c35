package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/acharya-agent/backend/internal/app"
	"github.com/acharya-agent/backend/pkg/config"
	"github.com/acharya-agent/backend/pkg/logger"
)

var (
	// Global flags
	configPath string
	logLevel   string
	timeout    time.Duration

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "acharya",
	Short: "Talk to the Acharya persona agent and curate its knowledge",
	Long: `acharya answers questions in the voice of Adi Shankara, in the language
they are asked in, and manages the knowledge the agent learns.

Run without arguments to start a chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if application != nil {
			return nil
		}

		if err := logger.Init(logLevel, "console", "stderr"); err != nil {
			return err
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		application, err = app.New(cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	RunE: runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a line-based conversation",
	Long: `Reads one utterance per line and prints the answer. The active language
carries over between lines, so "speak in Malayalam" keeps later answers in
Malayalam until English is requested. Type "exit" to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

var askCmd = &cobra.Command{
	Use:   "ask [utterance]",
	Short: "Answer a single utterance",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import Q:/A: pairs as manual knowledge",
	Long: `Reads blocks of the form

  Q: Where were you born?
  A: I was born in Kaladi.

separated by blank lines. HTML files are flattened to paragraphs first.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Manage candidates waiting for manual review",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued candidates",
	Args:  cobra.NoArgs,
	RunE:  runReviewList,
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve [id]",
	Short: "Store a queued candidate as knowledge",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewApprove,
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject [id]",
	Short: "Discard a queued candidate",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewReject,
}

var reviewAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Approve every candidate at or above the auto-approve threshold",
	Args:  cobra.NoArgs,
	RunE:  runReviewAuto,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge and learning statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var evalCmd = &cobra.Command{
	Use:   "eval [dataset]",
	Short: "Run a JSON or YAML dataset through the pipeline and report accuracy",
	Long: `Each item names an utterance and, optionally, the reply language, the
answer origin and a canonical-language reference answer to compare with.

  items:
    - utterance: "speak in Malayalam"
      language: ml
      origin: language-switch`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

var autoThreshold float64

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: search ./config.yaml, ./config, /etc/acharya)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Per-utterance timeout")

	reviewAutoCmd.Flags().Float64Var(&autoThreshold, "threshold", 0, "Override the configured auto-approve threshold")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewApproveCmd)
	reviewCmd.AddCommand(reviewRejectCmd)
	reviewCmd.AddCommand(reviewAutoCmd)

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(evalCmd)
}

func main() {
	err := rootCmd.Execute()
	if application != nil {
		application.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
