package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datalens-cli/internal/workspace"
)

var (
	listWorkspaces bool
	listWsName     string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces or the datasets recorded in one",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if listWorkspaces == (listWsName != "") { // either both set or neither
			return fmt.Errorf("specify exactly one of --workspaces or --workspace")
		}
		if listWorkspaces {
			root, err := defaultWorkspacesDir()
			if err != nil {
				return err
			}
			names, err := workspace.List(root)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(out, "(no workspaces)")
				return nil
			}
			for _, n := range names {
				fmt.Fprintf(out, "- %s\n", n)
			}
			return nil
		}
		w, err := loadWorkspace(listWsName)
		if err != nil {
			return err
		}
		printDatasets(out, w)
		return nil
	},
}

func printDatasets(out io.Writer, w *workspace.Workspace) {
	refs := w.Sorted()
	if len(refs) == 0 {
		fmt.Fprintln(out, "(no datasets)")
		return
	}
	for _, d := range refs {
		s := d.Summary
		status := "clean"
		if s.Total > 0 {
			status = fmt.Sprintf("%d issues, highest %s", s.Total, s.Highest)
		}
		fmt.Fprintf(out, "- %s: %s (%s, %d rows, %d columns; %s; checked %s)\n",
			d.ID, d.Name, d.Format, d.Rows, len(d.Columns), status, d.CheckedAt.Format("2006-01-02 15:04"))
	}
}

var removeWsName string

var removeCmd = &cobra.Command{
	Use:   "remove <dataset-id|name>",
	Short: "Remove a dataset record from a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if removeWsName == "" {
			return fmt.Errorf("--workspace is required")
		}
		w, err := loadWorkspace(removeWsName)
		if err != nil {
			return err
		}
		if !w.Remove(args[0]) {
			return fmt.Errorf("dataset %q not found in workspace %s", args[0], removeWsName)
		}
		if err := w.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s from %s\n", args[0], removeWsName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(removeCmd)
	listCmd.Flags().BoolVar(&listWorkspaces, "workspaces", false, "list workspaces")
	listCmd.Flags().StringVarP(&listWsName, "workspace", "w", "", "list datasets recorded in this workspace")
	removeCmd.Flags().StringVarP(&removeWsName, "workspace", "w", "", "workspace name")
}
