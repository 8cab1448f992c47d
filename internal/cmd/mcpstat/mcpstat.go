// Package mcpstat parses the usage analytics server's flags and selects
// stdio or HTTP transport.
package mcpstat

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/mcpstat/internal/platform/config"
	"github.com/louisbranch/mcpstat/internal/platform/otel"
	"github.com/louisbranch/mcpstat/internal/stats/mcpserver"
	"github.com/louisbranch/mcpstat/internal/stats/tracker"
)

// Transport values accepted by the -transport flag.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds the analytics server configuration. Database and audit log
// environment overrides are applied by the tracker itself.
type Config struct {
	ServerName  string
	DBPath      string
	LogPath     string
	LogEnabled  bool
	KeepOrphans bool
	Transport   string `env:"MCPSTAT_TRANSPORT" envDefault:"stdio"`
	HTTPAddr    string `env:"MCPSTAT_HTTP_ADDR" envDefault:"localhost:8081"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.ServerName, "name", "mcpstat", "server name reported to MCP clients")
	fs.StringVar(&cfg.DBPath, "db", "", "SQLite database path (default ./mcp_stat_data.sqlite)")
	fs.StringVar(&cfg.LogPath, "log", "", "audit log path (default ./mcp_stat.log)")
	fs.BoolVar(&cfg.LogEnabled, "log-enabled", false, "append one audit log line per invocation")
	fs.BoolVar(&cfg.KeepOrphans, "keep-orphans", false, "keep metadata for entities no longer registered")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport type: stdio or http")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address (for http transport)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the analytics MCP server and blocks until the context ends.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "mcpstat")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	tr, err := tracker.New(tracker.Config{
		ServerName:  cfg.ServerName,
		DBPath:      cfg.DBPath,
		LogPath:     cfg.LogPath,
		LogEnabled:  cfg.LogEnabled,
		KeepOrphans: cfg.KeepOrphans,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.Close(); err != nil {
			log.Printf("close tracker: %v", err)
		}
	}()

	server, err := mcpserver.New(tr, mcpserver.Options{ServerName: cfg.ServerName})
	if err != nil {
		return err
	}

	switch cfg.Transport {
	case TransportStdio:
		return server.Serve(ctx)
	case TransportHTTP:
		return server.ServeHTTP(ctx, cfg.HTTPAddr)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}
