// Package mcpserver exposes usage analytics over the Model Context
// Protocol: typed stats and catalog tools plus a reporting prompt. The
// analytics tools record their own invocations through the tracker, so the
// statistics cover the full tool surface.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/mcpstat/internal/stats/tracker"
)

const (
	// serverVersion identifies the MCP server version.
	serverVersion     = "0.1.0"
	defaultToolPrefix = "get"
	defaultPromptName = "usage_stats"
)

// Options configure the exposed MCP surface.
type Options struct {
	// ServerName identifies this MCP server to clients. Defaults to the
	// tracker's server name.
	ServerName string
	// ToolPrefix prefixes the analytics tool names.
	ToolPrefix string
	// PromptName names the reporting prompt.
	PromptName string
}

// Server hosts the analytics MCP server.
type Server struct {
	mcpServer     *mcp.Server
	tracker       *tracker.Tracker
	registrations []registration
}

// New builds an MCP server exposing the tracker's analytics.
func New(tr *tracker.Tracker, opts Options) (*Server, error) {
	if tr == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if opts.ServerName == "" {
		opts.ServerName = tr.ServerName()
	}
	if opts.ToolPrefix == "" {
		opts.ToolPrefix = defaultToolPrefix
	}
	if opts.PromptName == "" {
		opts.PromptName = defaultPromptName
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: opts.ServerName, Version: serverVersion}, nil)
	s := &Server{mcpServer: mcpServer, tracker: tr}

	stats := statsTool(opts.ToolPrefix)
	catalog := catalogTool(opts.ToolPrefix)
	prompt := reportPrompt(opts.PromptName)
	mcp.AddTool(mcpServer, stats, s.statsHandler(stats.Name))
	mcp.AddTool(mcpServer, catalog, s.catalogHandler(catalog.Name))
	mcpServer.AddPrompt(prompt, s.reportPromptHandler(prompt.Name))

	s.registrations = []registration{
		{tool: stats},
		{tool: catalog},
		{prompt: prompt},
	}
	return s, nil
}

type registration struct {
	tool   *mcp.Tool
	prompt *mcp.Prompt
}

// syncOwnMetadata registers the analytics surface itself, so the catalog
// and stats cover these tools alongside the host's. Upserts only; it must
// never trigger orphan cleanup against metadata the host registered.
func (s *Server) syncOwnMetadata(ctx context.Context) error {
	for _, reg := range s.registrations {
		entry := tracker.Registration{Tags: []string{"analytics", "usage"}}
		switch {
		case reg.tool != nil:
			entry.Name = reg.tool.Name
			entry.Description = reg.tool.Description
		case reg.prompt != nil:
			entry.Name = reg.prompt.Name
			entry.Description = reg.prompt.Description
		default:
			continue
		}
		if err := s.tracker.RegisterMetadata(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if err := s.syncOwnMetadata(ctx); err != nil {
		return fmt.Errorf("sync analytics metadata: %w", err)
	}
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
