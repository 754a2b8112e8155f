package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dataDir    string
	threadID   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "crew",
	Short: "Multi-agent research crew with plan review",
	Long: "crew runs a planning agent, a supervisor and worker agents over persistent\n" +
		"conversation threads. Plans pause for your review before any work starts.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&threadID, "thread", "t", "", "Thread to act on (default: most recent)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// withApp opens the application for the duration of a command.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to close store: %v\n", err)
			}
		}()
		return fn(cmd, args, a)
	}
}
