package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <analysis-id>",
	Short: "Download the finished report",
	Long: `Download the backend-rendered report of a completed analysis.

Examples:
  procwatch export 7f3a91                      # 7f3a91.pdf
  procwatch export 7f3a91 -f docx -o report.docx`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("format", "f", "pdf", "report format: pdf, docx")
	exportCmd.Flags().StringP("output", "o", "", "output file (default <analysis-id>.<format>)")
}

func runExport(cmd *cobra.Command, args []string) error {
	id := args[0]
	format, _ := cmd.Flags().GetString("format")
	if format != "pdf" && format != "docx" {
		return fmt.Errorf("unsupported format %q (want pdf or docx)", format)
	}

	outPath, _ := cmd.Flags().GetString("output")
	if outPath == "" {
		outPath = id + "." + format
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer f.Close()

	client := newClient(cmd)
	if err := client.ExportAnalysis(cmd.Context(), id, format, f); err != nil {
		os.Remove(outPath)
		return fmt.Errorf("exporting report: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Report written to %s\n", outPath)
	return nil
}
