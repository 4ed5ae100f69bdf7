package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcobitx/procwatch/internal/model"
	"github.com/marcobitx/procwatch/internal/stream"
	"github.com/marcobitx/procwatch/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <analysis-id>",
	Short: "Follow a running analysis live in the terminal",
	Long: `Attach to the push stream of an analysis and follow its phases,
reasoning output, and parsed documents as they arrive. When the run
completes, the view switches to a frozen review snapshot.

Examples:
  procwatch watch 7f3a91
  procwatch watch 7f3a91 --plain     # plain line output, no TUI`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("plain", false, "print status lines instead of the interactive view")
	watchCmd.Flags().Int("thinking-cap", stream.DefaultThinkingCap, "max bytes of reasoning text kept per phase")
}

func runWatch(cmd *cobra.Command, args []string) error {
	analysisID := args[0]
	client := newClient(cmd)

	session := stream.NewSession(client)
	if capBytes, _ := cmd.Flags().GetInt("thinking-cap"); capBytes > 0 {
		session.SetThinkingCap(capBytes)
	}
	defer session.Stop()

	if err := session.Start(cmd.Context(), analysisID); err != nil {
		return err
	}

	plain, _ := cmd.Flags().GetBool("plain")
	if plain {
		return watchPlain(session)
	}
	return tui.Run(session)
}

// watchPlain follows the subscription and prints a line per visible change,
// for logs and terminals where the full-screen view is unwanted.
func watchPlain(session *stream.Session) error {
	updates, unsub := session.Subscribe()
	defer unsub()

	var lastStatus model.Status
	var lastDocs, lastEvents int

	for st := range updates {
		if st.Status != lastStatus {
			lastStatus = st.Status
			fmt.Printf("[%4ds] status %s\n", st.ElapsedSec, st.Status)
		}
		for _, d := range st.ParsedDocs[lastDocs:] {
			fmt.Printf("[%4ds] parsed %s (%d pages)\n", st.ElapsedSec, d.Filename, d.Pages)
		}
		lastDocs = len(st.ParsedDocs)
		for _, ev := range st.Events[lastEvents:] {
			if ev.Kind == model.EventError {
				fmt.Fprintf(os.Stderr, "[%4ds] backend error: %s\n", st.ElapsedSec, ev.Message)
			}
		}
		lastEvents = len(st.Events)

		if st.Status.Terminal() {
			if st.ErrorMessage != "" {
				return fmt.Errorf("analysis failed: %s", st.ErrorMessage)
			}
			fmt.Printf("[%4ds] done\n", st.ElapsedSec)
			return nil
		}
		if st.StreamEnded {
			return fmt.Errorf("stream ended without a result; check the analysis with 'procwatch show'")
		}
	}
	return nil
}
