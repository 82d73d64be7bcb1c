package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aretw0/tapestry"
	"github.com/aretw0/tapestry/internal/presentation/graph"
	"github.com/aretw0/tapestry/internal/presentation/tui"
	"github.com/aretw0/tapestry/internal/script"
	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Replay scripted edits and print the resulting history",
	Long: `Replays a script of editor gestures against a fresh session, honouring
its wait steps, then prints the history that was recorded.

With --instant, waits at least as long as the debounce window commit the
pending capture immediately instead of sleeping.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instant, _ := cmd.Flags().GetBool("instant")
		mermaid, _ := cmd.Flags().GetBool("mermaid")
		verbose, _ := cmd.Flags().GetBool("verbose")

		s, err := script.ParseFile(args[0])
		if err != nil {
			return err
		}

		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if s.Debounce > 0 && !cmd.Flags().Changed("debounce") {
			cfg.Debounce = s.Debounce
		}
		// Replays never touch shared storage.
		cfg.Redis.Addr = ""

		app, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		defer app.Close(ctx)

		ed, err := app.Open(ctx, "replay", s.Graph)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if verbose {
			tui.PrintBanner(cmd.ErrOrStderr(), strings.TrimSpace(tapestry.Version))
		}

		player := &script.Player{Editor: ed}
		if instant {
			player.Wait = func(ctx context.Context, d time.Duration) error {
				if d >= app.Debounce() {
					ed.Flush()
				}
				return ctx.Err()
			}
		}
		if verbose {
			player.OnStep = func(i int, step script.Step) {
				fmt.Fprintf(cmd.ErrOrStderr(), "step %d: %s\n", i+1, step.Action)
			}
		}

		if err := player.Play(ctx, s); err != nil {
			return err
		}
		ed.Flush()

		entries, pos, err := ed.History(ctx)
		if err != nil {
			return err
		}
		snaps := make([]domain.Snapshot, len(entries))
		for i, e := range entries {
			snaps[i] = e.Snapshot
		}
		if err := tui.RenderHistory(out, snaps, pos); err != nil {
			return err
		}

		if mermaid {
			final, err := ed.Graph(ctx)
			if err != nil {
				return err
			}
			return writeMermaid(out, s.Graph, final)
		}
		return nil
	},
}

func writeMermaid(w io.Writer, before, after domain.Graph) error {
	overlay := &graph.Overlay{Changed: graph.ChangedNodes(before, after)}
	_, err := fmt.Fprintf(w, "\n```mermaid\n%s```\n", graph.GenerateMermaid(after, overlay))
	return err
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Bool("instant", false, "Commit captures at wait steps instead of sleeping")
	replayCmd.Flags().Bool("mermaid", false, "Print the final graph as a Mermaid diagram with changed nodes highlighted")
	replayCmd.Flags().BoolP("verbose", "v", false, "Print each step as it is applied")
}
