package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// httpReadHeaderTimeout bounds slow-header clients.
	httpReadHeaderTimeout = 10 * time.Second
	// httpShutdownTimeout is the maximum time to wait for graceful shutdown.
	httpShutdownTimeout = 35 * time.Second
)

// ServeHTTP serves the analytics MCP server over streamable HTTP on addr
// and blocks until the context ends or the listener fails. The context
// ending triggers a graceful drain of in-flight requests.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if addr == "" {
		return fmt.Errorf("http address is required")
	}
	if err := s.syncOwnMetadata(ctx); err != nil {
		return fmt.Errorf("sync analytics metadata: %w", err)
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve MCP over http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
		return fmt.Errorf("shutdown MCP http server: %w", err)
	}
	return nil
}
