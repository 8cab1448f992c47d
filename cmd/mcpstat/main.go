package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	mcpstatcmd "github.com/louisbranch/mcpstat/internal/cmd/mcpstat"
)

// main starts the usage analytics MCP server on stdio.
func main() {
	cfg, err := mcpstatcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[MCPSTAT] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mcpstatcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve usage analytics: %v", err)
	}
}
