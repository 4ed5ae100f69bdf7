package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcobitx/procwatch/internal/stream"
	"github.com/marcobitx/procwatch/internal/tui"
)

var createCmd = &cobra.Command{
	Use:   "create <document>...",
	Short: "Upload documents and start a new analysis",
	Long: `Upload one or more procurement documents (PDF or DOCX) and start an
analysis run. Prints the new analysis ID; pass --watch to attach to the
live stream immediately.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreate,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List analyses",
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <analysis-id>",
	Short: "Show one analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <analysis-id>",
	Short: "Cancel a running analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <analysis-id>",
	Short: "Delete an analysis and its stored documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the backend can analyze with",
	RunE:  runModels,
}

func init() {
	createCmd.Flags().StringP("name", "n", "", "name for the analysis run")
	createCmd.Flags().StringP("model", "m", "", "model to analyze with (see 'procwatch models')")
	createCmd.Flags().BoolP("watch", "w", false, "attach to the live stream after creating")
}

func runCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	modelID, _ := cmd.Flags().GetString("model")

	client := newClient(cmd)
	a, err := client.CreateAnalysis(cmd.Context(), name, modelID, args)
	if err != nil {
		return fmt.Errorf("creating analysis: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Created analysis %s (%d documents)\n", a.ID, a.DocCount)
	fmt.Println(a.ID)

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		session := stream.NewSession(client)
		defer session.Stop()
		if err := session.Start(cmd.Context(), a.ID); err != nil {
			return err
		}
		return tui.Run(session)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	client := newClient(cmd)
	analyses, err := client.ListAnalyses(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing analyses: %w", err)
	}

	if len(analyses) == 0 {
		fmt.Println("No analyses.")
		return nil
	}

	fmt.Printf("%-12s %-12s %-20s %5s  %s\n", "ID", "STATUS", "CREATED", "DOCS", "NAME")
	for _, a := range analyses {
		fmt.Printf("%-12s %-12s %-20s %5d  %s\n",
			a.ID, a.Status, a.CreatedAt.Local().Format("2006-01-02 15:04"), a.DocCount, a.Name)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	client := newClient(cmd)
	a, err := client.GetAnalysis(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("fetching analysis: %w", err)
	}

	fmt.Printf("ID:      %s\n", a.ID)
	if a.Name != "" {
		fmt.Printf("Name:    %s\n", a.Name)
	}
	fmt.Printf("Status:  %s\n", a.Status)
	if a.Model != "" {
		fmt.Printf("Model:   %s\n", a.Model)
	}
	fmt.Printf("Created: %s\n", a.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Docs:    %d\n", a.DocCount)
	if a.Error != "" {
		fmt.Printf("Error:   %s\n", a.Error)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	client := newClient(cmd)
	if err := client.CancelAnalysis(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("canceling analysis: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Canceled %s\n", args[0])
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	client := newClient(cmd)
	if err := client.DeleteAnalysis(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("deleting analysis: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Deleted %s\n", args[0])
	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	client := newClient(cmd)
	models, err := client.ListModels(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}

	for _, m := range models {
		marker := " "
		if m.Default {
			marker = "*"
		}
		fmt.Printf("%s %-24s %-12s %8d tokens  %s\n",
			marker, m.ID, m.Provider, m.ContextLength, m.Name)
	}
	return nil
}
