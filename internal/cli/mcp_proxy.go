package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/rostershield/internal/mcp"
)

var mcpProxyCmd = &cobra.Command{
	Use:   "mcp-proxy -- <executor-command> [args...]",
	Short: "MCP stdio proxy: unmask tool arguments, mask tool results",
	Long: `Starts a transparent MCP proxy between the AI client and the LMS
browser-command executor. tools/call arguments have roster tokens restored
before the executor sees them; everything the executor returns is masked
before it reaches the model.

A result that cannot be masked is withheld and replaced with a JSON-RPC
error. A request whose tokens cannot be restored is forwarded as-is.

Usage in the client's MCP config:
  "command": "rostershield mcp-proxy -- lms-executor --stdio"`,
	Args: cobra.MinimumNArgs(1),
	RunE: mcpProxyCommand,
}

func init() {
	rootCmd.AddCommand(mcpProxyCmd)
}

func mcpProxyCommand(cmd *cobra.Command, args []string) error {
	logToStderr()

	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	onAudit, closeAudit := auditSink(e.cfg.LogPath, e.owner, os.Stderr, "[RosterShield MCP]")
	defer closeAudit()

	fmt.Fprintf(os.Stderr, "[RosterShield MCP] proxy starting for executor: %v\n", args)
	fmt.Fprintf(os.Stderr, "[RosterShield MCP] owner: %s\n", e.owner)
	fmt.Fprintf(os.Stderr, "[RosterShield MCP] started at %s\n", time.Now().UTC().Format(time.RFC3339))

	proxy := mcp.NewProxy(mcp.ProxyConfig{
		ServerCmd: args,
		Rosters:   e.svc,
		OwnerID:   e.owner,
		OnAudit:   onAudit,
		Stderr:    os.Stderr,
	})

	return proxy.Run(cmd.Context())
}
