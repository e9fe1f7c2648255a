package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/rostershield/internal/mcp"
)

var mcpHTTPProxyCmd = &cobra.Command{
	Use:   "mcp-http-proxy --upstream <url>",
	Short: "MCP Streamable HTTP proxy: unmask tool arguments, mask tool results",
	Long: `Starts an MCP HTTP reverse proxy in front of an LMS executor that speaks
the Streamable HTTP transport. Requests are unmasked on the way upstream;
JSON and SSE responses are masked on the way back.

Usage:
  rostershield mcp-http-proxy --upstream http://localhost:8080/mcp
  rostershield mcp-http-proxy --upstream http://localhost:8080/mcp --port 9100

Point the AI client at the proxy's local URL:
  "url": "http://127.0.0.1:9100"`,
	RunE: mcpHTTPProxyCommand,
}

var (
	httpUpstreamURL string
	httpListenPort  int
)

func init() {
	mcpHTTPProxyCmd.Flags().StringVar(&httpUpstreamURL, "upstream", "", "Upstream MCP server URL (required)")
	mcpHTTPProxyCmd.Flags().IntVar(&httpListenPort, "port", 0, "Local port to listen on (default: auto-assign)")
	_ = mcpHTTPProxyCmd.MarkFlagRequired("upstream")
	rootCmd.AddCommand(mcpHTTPProxyCmd)
}

func mcpHTTPProxyCommand(cmd *cobra.Command, args []string) error {
	if httpUpstreamURL == "" {
		return fmt.Errorf("--upstream is required")
	}

	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	onAudit, closeAudit := auditSink(e.cfg.LogPath, e.owner, os.Stderr, "[RosterShield MCP-HTTP]")
	defer closeAudit()

	listenAddr := "127.0.0.1:0"
	if httpListenPort > 0 {
		listenAddr = fmt.Sprintf("127.0.0.1:%d", httpListenPort)
	}

	fmt.Fprintf(os.Stderr, "[RosterShield MCP-HTTP] owner: %s\n", e.owner)
	fmt.Fprintf(os.Stderr, "[RosterShield MCP-HTTP] started at %s\n", time.Now().UTC().Format(time.RFC3339))

	proxy := mcp.NewHTTPProxy(mcp.HTTPProxyConfig{
		UpstreamURL: httpUpstreamURL,
		ListenAddr:  listenAddr,
		Rosters:     e.svc,
		OwnerID:     e.owner,
		OnAudit:     onAudit,
		Stderr:      os.Stderr,
	})

	// Handle graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintf(os.Stderr, "\n[RosterShield MCP-HTTP] shutting down...\n")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = proxy.Shutdown(ctx)
	}()

	if err := proxy.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
