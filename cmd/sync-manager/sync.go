// cmd/sync-manager/sync.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	pullmodels "survey-sync/internal/workers/sync/pull-models"
	pushclients "survey-sync/internal/workers/sync/push-clients"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download reference collections",
	Long: `Refresh every stale reference collection from the remote source and
load the result into the master-data cache. Offline runs read local data.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, cleanup := bootstrap(ctx)
		defer cleanup()

		out, err := runPull(ctx, a, progressPrinter(os.Stderr))
		if err != nil {
			fatal("pull failed: %v", err)
		}
		if jsonOutput {
			printJSON(os.Stdout, out)
			return
		}
		printPull(os.Stdout, out)
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload pending client records",
	Long: `Send every client record without a sync stamp to the remote API,
followed by its social networks, answers and payment data.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, cleanup := bootstrap(ctx)
		defer cleanup()

		res, err := a.push.Execute(ctx)
		if err != nil && res == nil {
			fatal("push failed: %v", err)
		}
		if jsonOutput {
			printJSON(os.Stdout, res)
		} else {
			printPush(os.Stdout, res)
		}
		if err != nil || !res.OK {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
}

// runPull executes one pull and primes the cache with its collections.
func runPull(ctx context.Context, a *app, progress pullmodels.Progress) (*pullmodels.Output, error) {
	out, err := a.pull.Execute(ctx, progress)
	if err != nil {
		return nil, err
	}
	if err := a.cache.LoadData(ctx, out.Collections); err != nil {
		return out, err
	}
	return out, nil
}

func progressPrinter(w io.Writer) pullmodels.Progress {
	return func(message string, completed, total *int) {
		if completed == nil || total == nil {
			fmt.Fprintln(w, message)
			return
		}
		fmt.Fprintf(w, "[%d/%d] %s\n", *completed, *total, message)
	}
}

func printPull(w io.Writer, out *pullmodels.Output) {
	state := "offline"
	if out.Online {
		state = "online"
	}
	fmt.Fprintf(w, "Pull %s (%s)\n", out.RunID, state)
	for _, r := range out.Results {
		line := fmt.Sprintf("  %-18s %-8s %d rows", r.Name, r.Source, r.Rows)
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Fprintln(w, line)
	}
}

func printPush(w io.Writer, res *pushclients.RunResult) {
	if res.Reason != "" && len(res.Records) == 0 {
		fmt.Fprintf(w, "Push not run: %s\n", res.Reason)
		return
	}
	fmt.Fprintf(w, "Push %s to %s\n", res.RunID, res.BaseURL)
	for _, r := range res.Records {
		fmt.Fprintf(w, "  client %-6s %-8s server=%v\n", r.LocalID, r.State, r.ServerID)
		for _, s := range r.Steps {
			if !s.OK {
				fmt.Fprintf(w, "    %s failed after %d attempts: %s\n", s.Name, s.Attempts, s.Error)
			}
		}
	}
	fmt.Fprintf(w, "Total %d, ok %d, partial %d, failed %d\n",
		res.Summary.Total, res.Summary.OK, res.Summary.Partial, res.Summary.Failed)
}

func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encode output: %v", err)
	}
}
