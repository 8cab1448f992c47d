// Package tracker is the embedding surface for MCP usage analytics. A
// Tracker owns the SQLite store and the optional audit log, records
// invocations without ever failing the instrumented call, and exposes the
// query engine to hosts and reporting tools.
package tracker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/mcpstat/internal/platform/config"
	"github.com/louisbranch/mcpstat/internal/stats/auditlog"
	"github.com/louisbranch/mcpstat/internal/stats/storage"
	"github.com/louisbranch/mcpstat/internal/stats/storage/sqlite"
	"github.com/louisbranch/mcpstat/internal/stats/tags"
)

const (
	defaultDBPath  = "./mcp_stat_data.sqlite"
	defaultLogPath = "./mcp_stat.log"
)

// Preset pins curated tags and a short description for a known entity,
// taking precedence over anything derived from its registration.
type Preset struct {
	Tags  []string
	Short string
}

// Config controls a Tracker. Environment variables override the
// corresponding fields when set.
type Config struct {
	// ServerName labels this deployment in reports.
	ServerName string `env:"MCPSTAT_SERVER_NAME"`
	// DBPath locates the SQLite database file.
	DBPath string `env:"MCPSTAT_DB_PATH"`
	// LogPath locates the plain-text audit log.
	LogPath string `env:"MCPSTAT_LOG_PATH"`
	// LogEnabled turns the audit log on.
	LogEnabled bool `env:"MCPSTAT_LOG_ENABLED"`
	// KeepOrphans disables deletion of stale metadata during sync.
	KeepOrphans bool
	// Presets maps entity names to curated metadata.
	Presets map[string]Preset
}

// Registration is the closed payload a host supplies for each entity it
// exposes. Fields left empty are derived from the others.
type Registration struct {
	Name             string
	Description      string
	Tags             []string
	ShortDescription string
}

// Call carries the observed outcome of one invocation.
type Call struct {
	Name          string
	Kind          storage.Kind
	Success       bool
	ErrorMsg      string
	ResponseChars int64
	InputTokens   int64
	OutputTokens  int64
	DurationMS    *int64
}

// Tracker records usage and serves analytics queries. All recording paths
// swallow storage failures so instrumented calls never break.
type Tracker struct {
	serverName string
	store      storage.Store
	audit      *auditlog.Logger

	mu      sync.Mutex
	presets map[string]Preset
	closed  bool

	keepOrphans bool
}

// New builds a Tracker from cfg, applies environment overrides, opens the
// store eagerly, and attaches the audit log when enabled. A store that
// cannot be opened is a hard error; a failing audit log is not.
func New(cfg Config) (*Tracker, error) {
	if err := config.ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "mcp"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.LogPath == "" {
		cfg.LogPath = defaultLogPath
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open usage store: %w", err)
	}

	var audit *auditlog.Logger
	if cfg.LogEnabled {
		audit, err = auditlog.New(cfg.LogPath)
		if err != nil {
			log.Printf("audit log unavailable, continuing without it: %v", err)
			audit = nil
		}
	}

	presets := make(map[string]Preset, len(cfg.Presets))
	for name, preset := range cfg.Presets {
		presets[name] = preset
	}

	return &Tracker{
		serverName:  cfg.ServerName,
		store:       store,
		audit:       audit,
		presets:     presets,
		keepOrphans: cfg.KeepOrphans,
	}, nil
}

// ServerName returns the deployment label.
func (t *Tracker) ServerName() string {
	return t.serverName
}

// AddPreset registers curated metadata for an entity ahead of sync.
func (t *Tracker) AddPreset(name string, preset Preset) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.presets[name] = preset
}

// Record persists one invocation. Failures are logged and swallowed; the
// instrumented call already happened and must not be failed retroactively.
func (t *Tracker) Record(ctx context.Context, call Call) {
	if call.Name == "" {
		return
	}
	if call.Kind == "" {
		call.Kind = storage.KindTool
	}

	if err := t.audit.Log(call.Name, call.Kind, call.Success, call.ErrorMsg); err != nil {
		log.Printf("audit log write failed for %s:%s: %v", call.Kind, call.Name, err)
	}

	sample := storage.CallSample{
		Name:          call.Name,
		Kind:          call.Kind,
		ResponseChars: call.ResponseChars,
		InputTokens:   call.InputTokens,
		OutputTokens:  call.OutputTokens,
		DurationMS:    call.DurationMS,
	}
	if err := t.store.RecordCall(ctx, sample); err != nil {
		log.Printf("usage record failed for %s:%s: %v", call.Kind, call.Name, err)
	}
}

// ReportTokens adds actual token counts observed after the fact, for hosts
// that learn usage from the model response rather than at call time.
// Unknown names and storage failures are swallowed.
func (t *Tracker) ReportTokens(ctx context.Context, name string, inputTokens, outputTokens int64) {
	if name == "" {
		return
	}
	if err := t.store.AddTokens(ctx, name, inputTokens, outputTokens); err != nil {
		log.Printf("token report failed for %s: %v", name, err)
	}
}

// MeasuredFunc is an operation wrapped by Measure. It reports how many
// response characters it produced alongside its error.
type MeasuredFunc func(ctx context.Context) (responseChars int64, err error)

// Measure times fn, records the invocation including its duration and
// outcome, and returns fn's error unchanged.
func (t *Tracker) Measure(ctx context.Context, name string, kind storage.Kind, fn MeasuredFunc) error {
	start := time.Now()
	chars, err := fn(ctx)
	elapsed := time.Since(start).Milliseconds()

	call := Call{
		Name:          name,
		Kind:          kind,
		Success:       err == nil,
		ResponseChars: chars,
		DurationMS:    &elapsed,
	}
	if err != nil {
		call.ErrorMsg = err.Error()
	}
	t.Record(ctx, call)
	return err
}

// GetStats returns the flat usage listing. Query errors propagate.
func (t *Tracker) GetStats(ctx context.Context, query storage.StatsQuery) (storage.StatsReport, error) {
	return t.store.GetStats(ctx, query)
}

// GetByType returns usage grouped into per-kind buckets.
func (t *Tracker) GetByType(ctx context.Context) (storage.TypeReport, error) {
	return t.store.GetByType(ctx)
}

// GetCatalog returns the filtered metadata catalog.
func (t *Tracker) GetCatalog(ctx context.Context, query storage.CatalogQuery) (storage.Catalog, error) {
	return t.store.GetCatalog(ctx, query)
}

// SyncTools reconciles stored tool metadata against the host's current tool
// set, removing stale entries unless orphan retention is configured.
func (t *Tracker) SyncTools(ctx context.Context, registrations []Registration) error {
	updates := make([]storage.MetadataUpdate, 0, len(registrations))
	for _, reg := range registrations {
		updates = append(updates, t.metadataFor(reg))
	}
	if err := t.store.SyncMetadata(ctx, updates, !t.keepOrphans); err != nil {
		return fmt.Errorf("sync tool metadata: %w", err)
	}
	return nil
}

// SyncPrompts upserts prompt metadata. Prompts are never treated as
// orphans; their usage history outlives registration churn.
func (t *Tracker) SyncPrompts(ctx context.Context, registrations []Registration) error {
	return t.upsertAll(ctx, registrations, storage.KindPrompt)
}

// SyncResources upserts resource metadata, same retention rules as prompts.
func (t *Tracker) SyncResources(ctx context.Context, registrations []Registration) error {
	return t.upsertAll(ctx, registrations, storage.KindResource)
}

// RegisterMetadata upserts metadata for a single entity of any kind.
func (t *Tracker) RegisterMetadata(ctx context.Context, reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("registration name is required")
	}
	if err := t.store.UpdateMetadata(ctx, t.metadataFor(reg)); err != nil {
		return fmt.Errorf("register metadata for %s: %w", reg.Name, err)
	}
	return nil
}

func (t *Tracker) upsertAll(ctx context.Context, registrations []Registration, kind storage.Kind) error {
	for _, reg := range registrations {
		update := t.metadataFor(reg)
		update.Tags = append(update.Tags, string(kind))
		update.Tags = tags.Normalize(update.Tags, false)
		if err := t.store.UpdateMetadata(ctx, update); err != nil {
			return fmt.Errorf("sync %s metadata for %s: %w", kind, reg.Name, err)
		}
	}
	return nil
}

// metadataFor resolves the effective metadata for one registration: preset
// values win, explicit registration fields come next, and the rest is
// derived from the name and description.
func (t *Tracker) metadataFor(reg Registration) storage.MetadataUpdate {
	t.mu.Lock()
	preset, hasPreset := t.presets[reg.Name]
	t.mu.Unlock()

	update := storage.MetadataUpdate{
		Name:            reg.Name,
		FullDescription: reg.Description,
	}

	switch {
	case hasPreset && len(preset.Tags) > 0:
		update.Tags = tags.Normalize(preset.Tags, false)
	case len(reg.Tags) > 0:
		update.Tags = tags.Normalize(reg.Tags, false)
	default:
		update.Tags = generateTags(reg.Name)
	}

	switch {
	case hasPreset && preset.Short != "":
		update.ShortDescription = preset.Short
	case reg.ShortDescription != "":
		update.ShortDescription = reg.ShortDescription
	default:
		update.ShortDescription = tags.ShortDescription(reg.Description, reg.Name)
	}

	return update
}

// generateTags derives tags from a snake_case or kebab-case name, dropping
// stopwords. A name made entirely of stopwords falls back to itself.
func generateTags(name string) []string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_'
	})
	generated := tags.Normalize(parts, true)
	if len(generated) == 0 {
		return []string{strings.ToLower(name)}
	}
	return generated
}

// Close releases the store and the audit log. Safe to call more than once.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if err := t.audit.Close(); err != nil {
		log.Printf("closing audit log: %v", err)
	}
	return t.store.Close()
}
