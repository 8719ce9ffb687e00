package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embermind/engram/core/tools"
)

var (
	toolsCategory string
	toolsJSON     bool
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect the tool registry",
	RunE:  runToolsList,
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools",
	RunE:  runToolsList,
}

var toolsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rescan tool definition files and report the diff",
	RunE:  runToolsRefresh,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsRefreshCmd)
	toolsCmd.PersistentFlags().StringVar(&toolsCategory, "category", "", "Filter by category")
	toolsCmd.PersistentFlags().BoolVar(&toolsJSON, "json", false, "Output as JSON")
}

func openRegistry() (*tools.Registry, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return tools.NewRegistry(cfg.Tools.Dir, nil, logger)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	registry, err := openRegistry()
	if err != nil {
		return err
	}

	defs := registry.List(tools.ListFilter{Category: toolsCategory})
	w := cmd.OutOrStdout()

	if toolsJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(defs)
	}

	if len(defs) == 0 {
		fmt.Fprintf(w, "%sNo tools registered.%s\n", colorGray, colorReset)
		return nil
	}
	for _, def := range defs {
		state := colorGreen + "on " + colorReset
		if !def.Enabled {
			state = colorRed + "off" + colorReset
		}
		fmt.Fprintf(w, "%s tier %d  %s%-24s%s %s%s%s\n",
			state, def.Tier,
			colorBold, def.Name, colorReset,
			colorGray, def.Description, colorReset)
	}
	return nil
}

func runToolsRefresh(cmd *cobra.Command, args []string) error {
	registry, err := openRegistry()
	if err != nil {
		return err
	}

	// NewRegistry already scanned once; this second pass reports any
	// changes made since, which is what a cron or operator wants to see.
	res, err := registry.Refresh()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if toolsJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(w, "%sAdded:%s   %d\n", colorGray, colorReset, len(res.Added))
	fmt.Fprintf(w, "%sUpdated:%s %d\n", colorGray, colorReset, len(res.Updated))
	fmt.Fprintf(w, "%sRemoved:%s %d\n", colorGray, colorReset, len(res.Removed))
	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "%sErrors:%s\n", colorRed, colorReset)
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%s%d tools registered.%s\n", colorBold, registry.Count(), colorReset)
	return nil
}
