package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List and manage conversation threads",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		active := a.session.ActiveThreadID()
		for _, thread := range a.session.Threads(cmd.Context()) {
			marker := "  "
			if thread.ID == active {
				marker = color.GreenString("* ")
			}
			fmt.Printf("%s%s  %s  %s\n", marker, color.CyanString(thread.ID), thread.Title,
				color.HiBlackString(humanize.Time(thread.CreatedAt)))
		}
		return nil
	}),
}

var threadsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new thread",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		view, err := a.session.NewThread(cmd.Context())
		if err != nil {
			return err
		}
		color.Green("Created %s (%s)", view.Thread.ID, view.Thread.Title)
		return nil
	}),
}

var threadsRenameCmd = &cobra.Command{
	Use:   "rename <thread-id> <title>",
	Short: "Rename a thread",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		title := strings.Join(args[1:], " ")
		if err := a.session.RenameThread(cmd.Context(), args[0], title); err != nil {
			return err
		}
		color.Green("Renamed %s to %q", args[0], title)
		return nil
	}),
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <thread-id>",
	Short: "Delete a thread and its checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		view, err := a.deleteThread(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		color.Green("Deleted %s; active thread is now %s", args[0], view.Thread.ID)
		return nil
	}),
}

func init() {
	threadsCmd.AddCommand(threadsNewCmd)
	threadsCmd.AddCommand(threadsRenameCmd)
	threadsCmd.AddCommand(threadsDeleteCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the node activity log of the active thread",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		entries, err := a.activityLogger.GetActivityHistory(cmd.Context(), a.session.ActiveThreadID())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			color.Yellow("No activity recorded")
			return nil
		}
		for _, entry := range entries {
			line := fmt.Sprintf("%s  #%-3d %-18s %8s", entry.StartTime.Format(time.DateTime), entry.Visit, entry.Node,
				time.Duration(entry.Duration*float64(time.Second)).Round(time.Millisecond))
			if entry.Decision != "" {
				line += "  -> " + entry.Decision
			}
			if entry.Error != "" {
				color.Red("%s  %s", line, entry.Error)
				continue
			}
			fmt.Println(line)
		}
		return nil
	}),
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the workflow graph",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		fmt.Print(a.orchestrator.Graph().String())
		return nil
	}),
}
