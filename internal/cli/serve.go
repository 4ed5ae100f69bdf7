package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcobitx/procwatch/internal/replay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a local replay server for development",
	Long: `Start an HTTP server that plays a recorded event script over the same
push endpoint the real backend exposes. Useful for developing against a
deterministic stream without a backend.

Endpoints:
  GET /health                         — Health check
  GET /api/analyses                   — Scripted analysis record
  GET /api/analyses/{id}              — Scripted analysis record
  GET /api/analyses/{id}/stream       — Scripted push stream`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "127.0.0.1", "address to listen on")
	serveCmd.Flags().IntP("port", "p", 8420, "port to listen on")
	serveCmd.Flags().String("script", "", "event script file (JSON lines); built-in demo run when unset")
	serveCmd.Flags().Duration("delay", 400*time.Millisecond, "default pause between scripted events")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	port, _ := cmd.Flags().GetInt("port")
	delay, _ := cmd.Flags().GetDuration("delay")

	steps := replay.DemoScript()
	if scriptPath, _ := cmd.Flags().GetString("script"); scriptPath != "" {
		var err error
		steps, err = replay.LoadScript(scriptPath)
		if err != nil {
			return err
		}
	}

	listen := fmt.Sprintf("%s:%d", addr, port)
	srv := replay.New(listen, steps, delay)
	return srv.ListenAndServe()
}
