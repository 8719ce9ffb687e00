package tools

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Subdirectories scanned for definition files, in load order.
var toolSubdirs = []string{"core", "builtin", "generated"}

// Handler executes a tool call.
type Handler func(ctx context.Context, input map[string]any) (any, error)

// HandlerTable maps "module.function" references from tool definitions to
// executable handlers.
type HandlerTable map[string]Handler

// ToolResult is the structured outcome of one tool execution.
type ToolResult struct {
	ToolName string        `json:"tool_name"`
	Content  any           `json:"content"`
	IsError  bool          `json:"is_error"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// RefreshResult summarizes one scan of the definition tree.
type RefreshResult struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
	Errors  []string `json:"errors"`
}

// ListFilter narrows List output. A nil Tier matches all tiers.
type ListFilter struct {
	Tier        *int
	Category    string
	EnabledOnly bool
}

// Registry loads tool definitions from disk and dispatches executions.
// Refresh diffs file content hashes so unchanged files are never
// re-parsed, which keeps hot-reload cheap enough to run on every
// filesystem event.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu          sync.RWMutex
	tools       map[string]ToolDef
	sources     map[string]string   // tool name -> relative file path ("" = programmatic)
	fileHashes  map[string]string   // relative file path -> md5 hex
	fileNames   map[string][]string // relative file path -> tool names it defined
	handlers    map[string]Handler
	resolver    HandlerTable
	lastRefresh time.Time

	refreshMu sync.Mutex
}

// NewRegistry creates the definition subdirectories if needed and runs an
// initial scan. Scan errors for individual files are logged, not fatal.
func NewRegistry(dir string, resolver HandlerTable, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, sub := range toolSubdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create tool dir: %w", err)
		}
	}
	if resolver == nil {
		resolver = HandlerTable{}
	}
	r := &Registry{
		dir:        dir,
		logger:     logger,
		tools:      make(map[string]ToolDef),
		sources:    make(map[string]string),
		fileHashes: make(map[string]string),
		fileNames:  make(map[string][]string),
		handlers:   make(map[string]Handler),
		resolver:   resolver,
	}
	res, err := r.Refresh()
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		logger.Warn("tool scan finished with errors", "errors", res.Errors)
	}
	logger.Info("tool registry loaded",
		"tools", r.Count(), "added", len(res.Added), "dir", dir)
	return r, nil
}

// Refresh rescans the definition tree and applies the diff. Files whose
// content hash is unchanged are skipped without re-parsing. A malformed
// file is recorded in Errors and skipped; the tools it previously defined
// stay registered until the file parses again or disappears.
func (r *Registry) Refresh() (RefreshResult, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	var res RefreshResult
	present := make(map[string]bool)
	seen := make(map[string]bool)

	for _, sub := range toolSubdirs {
		paths, err := filepath.Glob(filepath.Join(r.dir, sub, "*.json"))
		if err != nil {
			return res, err
		}
		sort.Strings(paths)
		for _, path := range paths {
			rel, err := filepath.Rel(r.dir, path)
			if err != nil {
				rel = path
			}
			present[rel] = true
			r.scanFile(path, rel, seen, &res)
		}
	}

	r.mu.Lock()
	for rel := range r.fileHashes {
		if !present[rel] {
			delete(r.fileHashes, rel)
			delete(r.fileNames, rel)
		}
	}
	for name, src := range r.sources {
		if src != "" && !seen[name] {
			delete(r.tools, name)
			delete(r.sources, name)
			res.Removed = append(res.Removed, name)
		}
	}
	r.lastRefresh = time.Now()
	r.mu.Unlock()

	sort.Strings(res.Removed)
	return res, nil
}

// scanFile diffs one definition file against the cached state.
func (r *Registry) scanFile(path, rel string, seen map[string]bool, res *RefreshResult) {
	data, err := os.ReadFile(path)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rel, err))
		r.markPrevSeen(rel, seen)
		return
	}
	sum := md5.Sum(data)
	hash := hex.EncodeToString(sum[:])

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fileHashes[rel] == hash {
		for _, name := range r.fileNames[rel] {
			seen[name] = true
		}
		return
	}

	defs, err := decodeToolDefs(data)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rel, err))
		for _, name := range r.fileNames[rel] {
			seen[name] = true
		}
		return
	}

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if _, exists := r.tools[def.Name]; exists {
			res.Updated = append(res.Updated, def.Name)
		} else {
			res.Added = append(res.Added, def.Name)
		}
		r.tools[def.Name] = def
		r.sources[def.Name] = rel
		seen[def.Name] = true
		names = append(names, def.Name)
	}
	r.fileHashes[rel] = hash
	r.fileNames[rel] = names
}

func (r *Registry) markPrevSeen(rel string, seen map[string]bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.fileNames[rel] {
		seen[name] = true
	}
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (ToolDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns definitions matching the filter, sorted by name.
func (r *Registry) List(f ListFilter) []ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDef, 0, len(r.tools))
	for _, def := range r.tools {
		if f.EnabledOnly && !def.Enabled {
			continue
		}
		if f.Tier != nil && def.Tier != *f.Tier {
			continue
		}
		if f.Category != "" && def.Category != f.Category {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SchemasForAPI returns API schemas for every enabled tool.
func (r *Registry) SchemasForAPI() []APISchema {
	return r.schemas(func(def ToolDef) bool { return def.Enabled })
}

// CoreSchemasForAPI returns API schemas for enabled tier 0 and 1 tools,
// the set offered to the model on every turn.
func (r *Registry) CoreSchemasForAPI() []APISchema {
	return r.schemas(func(def ToolDef) bool { return def.Enabled && def.Tier <= TierCore })
}

func (r *Registry) schemas(keep func(ToolDef) bool) []APISchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]APISchema, 0, len(r.tools))
	for _, def := range r.tools {
		if keep(def) {
			out = append(out, def.ToAPISchema())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterTool adds a definition at runtime, enabled like file-loaded
// tools. When persist is true the definition is written to
// generated/<name>.json so it survives restarts and future refreshes
// treat it as file-backed; a tool is disabled by setting "enabled"
// false in its definition file.
func (r *Registry) RegisterTool(def ToolDef, persist bool) error {
	def.Enabled = true
	if def.Category == "" {
		def.Category = "general"
	}
	if def.CreatedBy == "" {
		def.CreatedBy = "builder"
	}
	if def.CreatedAt == "" {
		def.CreatedAt = nowStamp()
	}
	if err := def.Validate(); err != nil {
		return err
	}

	src := ""
	if persist {
		rel := filepath.Join("generated", def.Name+".json")
		data, err := json.MarshalIndent(def, "", "  ")
		if err != nil {
			return fmt.Errorf("encode tool: %w", err)
		}
		if err := os.WriteFile(filepath.Join(r.dir, rel), data, 0o644); err != nil {
			return fmt.Errorf("persist tool: %w", err)
		}
		sum := md5.Sum(data)
		src = rel

		r.mu.Lock()
		r.fileHashes[rel] = hex.EncodeToString(sum[:])
		r.fileNames[rel] = []string{def.Name}
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.tools[def.Name] = def
	r.sources[def.Name] = src
	r.mu.Unlock()

	r.logger.Info("tool registered", "tool", def.Name, "tier", def.Tier, "persisted", persist)
	return nil
}

// UnregisterTool removes a tool. When deleteFile is true its definition
// file is removed from whichever subdirectory holds <name>.json.
func (r *Registry) UnregisterTool(name string, deleteFile bool) error {
	r.mu.Lock()
	_, ok := r.tools[name]
	if ok {
		delete(r.tools, name)
		delete(r.sources, name)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if deleteFile {
		for _, sub := range toolSubdirs {
			rel := filepath.Join(sub, name+".json")
			path := filepath.Join(r.dir, rel)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("delete tool file: %w", err)
			}
			r.mu.Lock()
			delete(r.fileHashes, rel)
			delete(r.fileNames, rel)
			r.mu.Unlock()
			break
		}
	}

	r.logger.Info("tool unregistered", "tool", name, "file_deleted", deleteFile)
	return nil
}

// RegisterHandler binds a handler directly to a tool name. Direct
// bindings take precedence over handler_module/handler_function
// resolution.
func (r *Registry) RegisterHandler(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// resolveHandler finds the executable for a tool.
func (r *Registry) resolveHandler(name string) (Handler, ToolDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	if !ok {
		return nil, ToolDef{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if h, ok := r.handlers[name]; ok {
		return h, def, nil
	}
	if def.HandlerModule != "" && def.HandlerFunction != "" {
		key := def.HandlerModule + "." + def.HandlerFunction
		if h, ok := r.resolver[key]; ok {
			return h, def, nil
		}
	}
	return nil, def, fmt.Errorf("%w: %s", ErrHandlerNotFound, name)
}

// ExecuteTool runs a tool and always returns a structured result. Handler
// errors and panics are captured in the result rather than propagated, so
// a failing tool never takes the turn loop down with it.
func (r *Registry) ExecuteTool(ctx context.Context, name string, input map[string]any) ToolResult {
	start := time.Now()
	result := ToolResult{ToolName: name}

	h, def, err := r.resolveHandler(name)
	if err != nil {
		result.IsError = true
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	if !def.Enabled {
		result.IsError = true
		result.Error = fmt.Sprintf("tool %s is disabled", name)
		result.Duration = time.Since(start)
		return result
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				result.IsError = true
				result.Error = fmt.Sprintf("tool panicked: %v", rec)
			}
		}()
		out, err := h(ctx, input)
		if err != nil {
			result.IsError = true
			result.Error = err.Error()
			return
		}
		result.Content = out
	}()

	result.Duration = time.Since(start)
	if result.IsError {
		r.logger.Warn("tool execution failed", "tool", name, "error", result.Error)
	} else {
		r.logger.Debug("tool executed", "tool", name, "duration", result.Duration)
	}
	return result
}

// RegistryStats summarizes registry contents.
type RegistryStats struct {
	Total       int            `json:"total"`
	Enabled     int            `json:"enabled"`
	ByTier      map[int]int    `json:"by_tier"`
	ByCategory  map[string]int `json:"by_category"`
	LastRefresh time.Time      `json:"last_refresh"`
}

// Stats returns counts by tier and category.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		Total:       len(r.tools),
		ByTier:      make(map[int]int),
		ByCategory:  make(map[string]int),
		LastRefresh: r.lastRefresh,
	}
	for _, def := range r.tools {
		stats.ByTier[def.Tier]++
		stats.ByCategory[def.Category]++
		if def.Enabled {
			stats.Enabled++
		}
	}
	return stats
}
