package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/bryanchriswhite/portalcast/internal/display"
	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "List connected outputs",
	Long: `List the outputs RandR reports as connected and driven by a CRTC.

A region picked with the selector is matched to the output whose top-left
corner equals the picked point.`,
	Example: `  # List outputs as a table (default)
  portalcast outputs

  # List outputs as JSON
  portalcast outputs --format json`,
	RunE: runOutputs,
}

var outputsFormat string

func init() {
	rootCmd.AddCommand(outputsCmd)

	outputsCmd.Flags().StringVarP(&outputsFormat, "format", "f", "table", "output format (table or json)")
}

func runOutputs(cmd *cobra.Command, args []string) error {
	enumerator, err := display.NewRandREnumerator()
	if err != nil {
		return fmt.Errorf("failed to connect to X11: %w", err)
	}
	defer enumerator.Close()

	outputs, err := enumerator.ListOutputs(cmd.Context())
	if err != nil {
		return err
	}

	switch outputsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(outputs)
	case "table":
		return printOutputsTable(os.Stdout, outputs)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", outputsFormat)
	}
}

func printOutputsTable(w io.Writer, outputs []display.Output) error {
	if len(outputs) == 0 {
		_, err := fmt.Fprintln(w, "No connected outputs found.")
		return err
	}

	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := ltable.New().
		Border(lipgloss.RoundedBorder()).
		Headers("NAME", "ID", "POSITION", "SIZE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return header
			}
			return cell
		})

	for _, o := range outputs {
		t.Row(
			o.Name,
			strconv.FormatUint(uint64(o.ID), 10),
			fmt.Sprintf("%d,%d", o.Position.X, o.Position.Y),
			fmt.Sprintf("%dx%d", o.Width, o.Height),
		)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}
