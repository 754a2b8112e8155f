package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/deepnoodle-ai/crew"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var episodic bool

// printBlock writes one display block as it streams in.
func printBlock(block crew.Block) {
	if block.Channel == crew.ChannelProgress {
		fmt.Print(color.HiBlackString("%s", block.Text))
		return
	}
	fmt.Print(block.Text)
}

func printOutcome(outcome *crew.TurnOutcome, err error) error {
	fmt.Println()
	if err != nil {
		if errors.Is(err, crew.ErrTurnInFlight) {
			return fmt.Errorf("a turn is already running on this thread")
		}
		return err
	}
	if outcome.AwaitingApproval {
		color.Yellow("\n%s", crew.PlanReviewInstructions)
		color.Yellow("Run `crew approve` to accept the plan or `crew send` with your changes.")
	}
	if result := outcome.Result; result != nil && result.Status == crew.TurnSuspended &&
		result.Interrupt != nil && result.Interrupt.Type == crew.InterruptSignal {
		color.Yellow("Paused at %s: %s", result.Interrupt.Node, result.Interrupt.Message)
	}
	return nil
}

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a message to the active thread",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if cmd.Flags().Changed("episodic") {
			a.session.SetEpisodicLearning(episodic)
		}
		outcome, err := a.session.Send(cmd.Context(), strings.Join(args, " "), printBlock)
		return printOutcome(outcome, err)
	}),
}

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve the plan the active thread is waiting on",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		outcome, err := a.session.Approve(cmd.Context(), printBlock)
		if errors.Is(err, crew.ErrNothingToResume) {
			return fmt.Errorf("no plan is waiting for approval")
		}
		return printOutcome(outcome, err)
	}),
}

func printView(view *crew.ThreadView) {
	color.Cyan("%s  %s\n", view.Thread.ID, view.Thread.Title)
	for _, entry := range view.Entries {
		if entry.Role == crew.EntryUser {
			color.Green("\n> %s\n", entry.Content)
			continue
		}
		fmt.Println(entry.Content)
	}
	if view.AwaitingApproval {
		color.Yellow("\nWaiting for plan approval.")
	}
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the conversation of the active thread",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		view, err := a.session.Activate(cmd.Context(), a.session.ActiveThreadID())
		if err != nil {
			return err
		}
		printView(view)
		return nil
	}),
}

var attachCmd = &cobra.Command{
	Use:   "attach <file>...",
	Short: "Attach files to the active thread",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		for _, path := range args {
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			record, added, err := a.session.Attach(cmd.Context(), path)
			if err != nil {
				return err
			}
			if !added {
				color.Yellow("%s is already attached", path)
				continue
			}
			color.Green("Attached %s (%s)", record.DisplayName, humanize.Bytes(uint64(info.Size())))
		}
		return nil
	}),
}

var filesClear bool

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the files attached to the active thread",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if filesClear {
			return a.session.ClearFiles()
		}
		for _, file := range a.session.Files() {
			fmt.Printf("%s  %s  %s\n", file.DisplayName, color.HiBlackString(file.Path),
				humanize.Time(file.AddedAt))
		}
		return nil
	}),
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Learn the approved plan of the active thread for future planning",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		result, err := a.session.ExtractLearning(cmd.Context())
		if err != nil {
			return err
		}
		if result.Stored > 0 {
			color.Green("%s (%d example stored, %d total)", result.Summary, result.Stored, a.memory.Len())
			return nil
		}
		color.Yellow("%s", result.Summary)
		return nil
	}),
}

func init() {
	sendCmd.Flags().BoolVar(&episodic, "episodic", false, "Use learned plans when planning")
	filesCmd.Flags().BoolVar(&filesClear, "clear", false, "Detach every file")
}
