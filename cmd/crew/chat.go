package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/deepnoodle-ai/crew"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var metricsAddr string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session on the active thread",
	Long: "Interactive session. Lines are sent to the active thread. Commands:\n" +
		"  /approve            approve the pending plan\n" +
		"  /new                start a new thread\n" +
		"  /threads            list threads\n" +
		"  /switch <id>        activate a thread\n" +
		"  /rename <title>     rename the active thread\n" +
		"  /delete             delete the active thread\n" +
		"  /attach <path>      attach a file\n" +
		"  /learn              learn the approved plan\n" +
		"  /episodic on|off    use learned plans when planning\n" +
		"  /quit               exit",
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		if metricsAddr != "" {
			server := &http.Server{
				Addr:              metricsAddr,
				Handler:           promhttp.HandlerFor(a.registerer, promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.Error("metrics server failed", "error", err)
				}
			}()
			defer server.Close()
			color.Blue("Metrics on http://%s/metrics", metricsAddr)
		}

		view, err := a.session.Activate(ctx, a.session.ActiveThreadID())
		if err != nil {
			return err
		}
		printView(view)

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print(color.GreenString("\n> "))
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" {
				return nil
			}
			if err := chatLine(ctx, a, line); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				color.Red("Error: %v", err)
			}
		}
	}),
}

func chatLine(ctx context.Context, a *app, line string) error {
	if !strings.HasPrefix(line, "/") {
		outcome, err := a.session.Send(ctx, line, printBlock)
		return printOutcome(outcome, err)
	}
	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch command {
	case "/approve":
		outcome, err := a.session.Approve(ctx, printBlock)
		if errors.Is(err, crew.ErrNothingToResume) {
			return fmt.Errorf("no plan is waiting for approval")
		}
		return printOutcome(outcome, err)
	case "/new":
		view, err := a.session.NewThread(ctx)
		if err != nil {
			return err
		}
		printView(view)
	case "/threads":
		active := a.session.ActiveThreadID()
		for _, thread := range a.session.Threads(ctx) {
			marker := "  "
			if thread.ID == active {
				marker = "* "
			}
			fmt.Printf("%s%s  %s\n", marker, thread.ID, thread.Title)
		}
	case "/switch":
		view, err := a.session.Activate(ctx, arg)
		if err != nil {
			return err
		}
		printView(view)
	case "/rename":
		return a.session.RenameThread(ctx, a.session.ActiveThreadID(), arg)
	case "/delete":
		view, err := a.deleteThread(ctx, a.session.ActiveThreadID())
		if err != nil {
			return err
		}
		printView(view)
	case "/attach":
		record, added, err := a.session.Attach(ctx, arg)
		if err != nil {
			return err
		}
		if added {
			color.Green("Attached %s", record.DisplayName)
		} else {
			color.Yellow("Already attached")
		}
	case "/learn":
		result, err := a.session.ExtractLearning(ctx)
		if err != nil {
			return err
		}
		fmt.Println(result.Summary)
	case "/episodic":
		a.session.SetEpisodicLearning(arg == "on")
		fmt.Printf("Episodic learning %s\n", map[bool]string{true: "on", false: "off"}[arg == "on"])
	default:
		return fmt.Errorf("unknown command %s", command)
	}
	return nil
}

func init() {
	chatCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
}
