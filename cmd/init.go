package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/embermind/engram/core/graph"
	"github.com/embermind/engram/core/identity"
)

var (
	initName     string
	initTagline  string
	initSeedPath string
	initUserName string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the memory graph and seed a persona",
	Long: `Create the database if needed and seed the persona identity.

A seed file describes the persona in YAML:

  name: Iris
  tagline: a curious research companion
  personality_summary: warm, precise, occasionally playful
  core_values: [honesty, curiosity]
  initial_traits:
    - name: curious
      description: asks follow-up questions
      type: core

Running init against an existing persona is a no-op.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initName, "name", "", "Persona name (overrides seed file)")
	initCmd.Flags().StringVar(&initTagline, "tagline", "", "Persona tagline")
	initCmd.Flags().StringVar(&initSeedPath, "seed", "", "Path to a YAML seed file")
	initCmd.Flags().StringVar(&initUserName, "user", "", "First name of the primary user")
}

// seedFile is the YAML shape of a persona seed.
type seedFile struct {
	Name               string   `yaml:"name"`
	Tagline            string   `yaml:"tagline"`
	PersonalitySummary string   `yaml:"personality_summary"`
	VoiceDescription   string   `yaml:"voice_description"`
	CommunicationStyle string   `yaml:"communication_style"`
	CoreValues         []string `yaml:"core_values"`
	Interests          []string `yaml:"interests"`
	Quirks             []string `yaml:"quirks"`
	Model              string   `yaml:"model"`
	InitialTraits      []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Type        string `yaml:"type"`
	} `yaml:"initial_traits"`
	InitialMemory *struct {
		Title   string `yaml:"title"`
		Content string `yaml:"content"`
		Type    string `yaml:"type"`
	} `yaml:"initial_memory"`
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	seed, err := buildSeed()
	if err != nil {
		return err
	}
	if seed.Name == "" {
		return fmt.Errorf("persona name required (--name or seed file)")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := graph.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open graph: %w", err)
	}
	defer store.Close()

	svc := identity.NewService(store, logger)

	if initUserName != "" {
		if _, err := svc.EnsureUser(initUserName, "", nil); err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
	}

	id, created, err := svc.EnsurePersona(seed)
	if err != nil {
		return fmt.Errorf("seed persona: %w", err)
	}

	if err := writeStarterTools(cfg.Tools.Dir); err != nil {
		return fmt.Errorf("write starter tools: %w", err)
	}

	w := cmd.OutOrStdout()
	if created {
		fmt.Fprintf(w, "%sCreated persona%s %s%s%s (%d traits, %d memories)\n",
			colorGreen, colorReset, colorBold, id.Name, colorReset,
			len(id.Traits), len(id.Memories))
	} else {
		fmt.Fprintf(w, "%sPersona %s already exists%s (%d traits, %d memories, %d preferences)\n",
			colorYellow, id.Name, colorReset,
			len(id.Traits), len(id.Memories), len(id.Preferences))
	}
	fmt.Fprintf(w, "%sDatabase:%s %s\n", colorGray, colorReset, cfg.Database.Path)
	return nil
}

// writeStarterTools lays down the core tool definitions on first init.
// Existing files are left alone so operator edits survive re-init.
func writeStarterTools(dir string) error {
	starters := map[string]string{
		"search_memory": `[{
  "name": "search_memory",
  "description": "Search long-term memory for nodes relevant to a query.",
  "input_schema": {
    "type": "object",
    "properties": {
      "query": {"type": "string", "description": "What to search for"},
      "node_type": {"type": "string", "description": "Optional node type filter"}
    },
    "required": ["query"]
  },
  "tier": 0,
  "handler_module": "memory",
  "handler_function": "search",
  "category": "memory"
}]`,
		"remember": `[{
  "name": "remember",
  "description": "Store a new memory about the user or the conversation.",
  "input_schema": {
    "type": "object",
    "properties": {
      "title": {"type": "string"},
      "content": {"type": "string"},
      "memory_type": {"type": "string", "description": "episodic, semantic, or procedural"}
    },
    "required": ["title", "content"]
  },
  "tier": 1,
  "handler_module": "memory",
  "handler_function": "remember",
  "category": "memory"
}]`,
	}

	coreDir := filepath.Join(dir, "core")
	if err := os.MkdirAll(coreDir, 0o755); err != nil {
		return err
	}
	for name, body := range starters {
		path := filepath.Join(coreDir, name+".json")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func buildSeed() (identity.Seed, error) {
	var seed identity.Seed

	if initSeedPath != "" {
		data, err := os.ReadFile(initSeedPath)
		if err != nil {
			return seed, fmt.Errorf("read seed file: %w", err)
		}
		var sf seedFile
		if err := yaml.Unmarshal(data, &sf); err != nil {
			return seed, fmt.Errorf("parse seed file: %w", err)
		}
		seed = identity.Seed{
			Name:               sf.Name,
			Tagline:            sf.Tagline,
			PersonalitySummary: sf.PersonalitySummary,
			VoiceDescription:   sf.VoiceDescription,
			CommunicationStyle: sf.CommunicationStyle,
			CoreValues:         sf.CoreValues,
			Interests:          sf.Interests,
			Quirks:             sf.Quirks,
			Model:              sf.Model,
		}
		for _, t := range sf.InitialTraits {
			seed.InitialTraits = append(seed.InitialTraits, identity.TraitSeed{
				Name:        t.Name,
				Description: t.Description,
				Type:        t.Type,
			})
		}
		if sf.InitialMemory != nil {
			seed.InitialMemory = &identity.MemorySeed{
				Title:   sf.InitialMemory.Title,
				Content: sf.InitialMemory.Content,
				Type:    sf.InitialMemory.Type,
			}
		}
	}

	if initName != "" {
		seed.Name = initName
	}
	if initTagline != "" {
		seed.Tagline = initTagline
	}
	return seed, nil
}
