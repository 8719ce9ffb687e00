package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/embermind/engram/core/embedding"
	"github.com/embermind/engram/core/graph"
)

var (
	searchType   string
	searchMode   string
	searchLimit  int
	searchWeight float64
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the memory graph",
	Long: `Search nodes in the memory graph.

Modes:
  substring  - SQL substring match on node names
  vector     - cosine similarity over stored embeddings
  hybrid     - weighted blend of full-text and vector scores

Examples:
  engram search "sqlite"
  engram search --mode vector --type Memory "databases the user likes"
  engram search --mode hybrid --vector-weight 0.7 "project deadlines"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "", "Restrict to one node type (e.g. Memory, Person)")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "substring", "Search mode: substring, vector, hybrid")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "Maximum results")
	searchCmd.Flags().Float64Var(&searchWeight, "vector-weight", graph.DefaultVectorWeight, "Vector weight for hybrid mode")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := graph.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open graph: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	nodeType := graph.NodeType(searchType)

	switch searchMode {
	case "substring":
		var nodes []graph.Node
		if nodeType == "" {
			nodes, err = store.SearchAll(query, searchLimit)
		} else {
			nodes, err = store.SearchNodes(nodeType, "name", query, searchLimit)
		}
		if err != nil {
			return err
		}
		return printNodes(cmd.OutOrStdout(), nodes)

	case "vector", "hybrid":
		embedder, err := embedding.NewProvider(ctx, cfg.Embedding)
		if err != nil {
			return fmt.Errorf("embedding provider: %w", err)
		}
		vec, err := embedder.Embed(ctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}

		var scored []graph.Scored
		if searchMode == "vector" {
			scored, err = store.VectorSearch(vec, nodeType, searchLimit, 0)
		} else {
			scored, err = store.HybridSearch(ctx, query, vec, nodeType, searchLimit, 1-searchWeight, searchWeight)
		}
		if err != nil {
			return err
		}
		return printScored(cmd.OutOrStdout(), scored)

	default:
		return fmt.Errorf("unknown search mode %q", searchMode)
	}
}

func printNodes(w io.Writer, nodes []graph.Node) error {
	if searchJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(nodes)
	}
	if len(nodes) == 0 {
		fmt.Fprintf(w, "%sNo results.%s\n", colorGray, colorReset)
		return nil
	}
	for _, n := range nodes {
		fmt.Fprintf(w, "%s%-12s%s %s%s%s %s%s%s\n",
			colorCyan, n.Type, colorReset,
			colorBold, n.Name, colorReset,
			colorGray, n.ID, colorReset)
	}
	return nil
}

func printScored(w io.Writer, results []graph.Scored) error {
	if searchJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "%sNo results.%s\n", colorGray, colorReset)
		return nil
	}
	for _, r := range results {
		summary := r.Props.String("content")
		if summary == "" {
			summary = r.Props.String("description")
		}
		if len(summary) > 80 {
			summary = summary[:77] + "..."
		}
		fmt.Fprintf(w, "%s%.3f%s %s%-12s%s %s%s%s",
			colorGreen, r.Score, colorReset,
			colorCyan, r.Type, colorReset,
			colorBold, r.Name, colorReset)
		if summary != "" {
			fmt.Fprintf(w, " %s%s%s", colorGray, strings.ReplaceAll(summary, "\n", " "), colorReset)
		}
		fmt.Fprintln(w)
	}
	return nil
}
