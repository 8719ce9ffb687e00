package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/embermind/engram/core/graph"
	"github.com/embermind/engram/core/tools"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory graph and tool registry statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")
}

type statsOutput struct {
	Graph *graph.Stats         `json:"graph"`
	Tools *tools.RegistryStats `json:"tools,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := graph.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open graph: %w", err)
	}
	defer store.Close()

	gstats, err := store.Stats()
	if err != nil {
		return fmt.Errorf("graph stats: %w", err)
	}

	out := statsOutput{Graph: gstats}
	if registry, err := tools.NewRegistry(cfg.Tools.Dir, nil, logger); err == nil {
		tstats := registry.Stats()
		out.Tools = &tstats
	} else {
		logger.Warn("tool registry unavailable", "error", err)
	}

	if statsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printStats(cmd.OutOrStdout(), &out)
}

func printStats(w io.Writer, out *statsOutput) error {
	fmt.Fprintf(w, "%s%sMemory Graph%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(w, "%sNodes:%s         %d\n", colorGray, colorReset, out.Graph.TotalNodes)
	fmt.Fprintf(w, "%sRelationships:%s %d\n", colorGray, colorReset, out.Graph.TotalRelationships)
	fmt.Fprintf(w, "%sVectors:%s       %d\n", colorGray, colorReset, out.Graph.TotalVectors)

	if len(out.Graph.NodesByType) > 0 {
		fmt.Fprintln(w)
		types := make([]string, 0, len(out.Graph.NodesByType))
		for t := range out.Graph.NodesByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %s%-14s%s %d\n", colorGray, t, colorReset, out.Graph.NodesByType[graph.NodeType(t)])
		}
	}

	if out.Tools != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s%sTool Registry%s\n", colorBold, colorCyan, colorReset)
		fmt.Fprintf(w, "%sTools:%s   %d (%d enabled)\n", colorGray, colorReset, out.Tools.Total, out.Tools.Enabled)
		tiers := make([]int, 0, len(out.Tools.ByTier))
		for tier := range out.Tools.ByTier {
			tiers = append(tiers, tier)
		}
		sort.Ints(tiers)
		for _, tier := range tiers {
			fmt.Fprintf(w, "  %stier %d%s %d\n", colorGray, tier, colorReset, out.Tools.ByTier[tier])
		}
	}
	return nil
}
