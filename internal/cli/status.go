package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gzhole/rostershield/internal/config"
	"github.com/gzhole/rostershield/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show RosterShield status: storage, course context, MCP proxies, audit log",
	Long: `Check how RosterShield is set up: where rosters are stored, which
course is current, which MCP clients route through the proxy and whether
the audit log exists.

  rostershield status`,
	RunE: statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, "  RosterShield Status")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Fprintf(w, "  Binary:    %s (%s)\n", binPath, Version)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(w, "  ⚠  Config: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "  Config:    %s\n", cfg.ConfigDir)
	fmt.Fprintf(w, "  Owner:     %s\n", cfg.OwnerID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "─── Rosters ───────────────────────────────────────────")
	checkRosters(cmd, w)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "─── MCP Proxy ─────────────────────────────────────────")
	checkMCPProxy(w, "Cursor MCP", filepath.Join(os.Getenv("HOME"), ".cursor", "mcp.json"))
	if p := claudeDesktopConfigPath(); p != "" {
		checkMCPProxy(w, "Claude Desktop", p)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "─── Audit Log ─────────────────────────────────────────")
	checkAuditLog(w, cfg.LogPath)
	fmt.Fprintln(w)

	return nil
}

func checkRosters(cmd *cobra.Command, w io.Writer) {
	e, err := openEnv(cmd.Context())
	if err != nil {
		fmt.Fprintf(w, "  ⚠  Store unavailable: %v\n", err)
		return
	}
	defer e.Close()

	fmt.Fprintf(w, "  Store:     %s (%s)\n", store.DBType(e.cfg.Database.DSN), safeDSN(e.cfg))
	if e.redis != nil {
		fmt.Fprintf(w, "  Contexts:  redis (%s)\n", safeURL(e.cfg.Redis.URL))
	} else {
		fmt.Fprintln(w, "  Contexts:  in-process")
	}

	courses, err := e.store.ListCourses(cmd.Context(), e.owner)
	if err != nil {
		fmt.Fprintf(w, "  ⚠  Listing courses failed: %v\n", err)
		return
	}
	if len(courses) == 0 {
		fmt.Fprintln(w, "  ⬚  No rosters synced yet")
	} else {
		total := 0
		for _, c := range courses {
			total += c.Entries
		}
		fmt.Fprintf(w, "  ✅ %d course roster(s), %d entries\n", len(courses), total)
	}

	current, ok, err := e.svc.Contexts.GetCourseContext(cmd.Context(), e.owner)
	switch {
	case err != nil:
		fmt.Fprintf(w, "  ⚠  Course context: %v\n", err)
	case ok:
		fmt.Fprintf(w, "  ✅ Current course: %d\n", current)
	default:
		fmt.Fprintln(w, "  ⬚  No current course context")
	}
}

// safeDSN hides the password of a URL-style DSN.
func safeDSN(cfg *config.Config) string {
	if store.DBType(cfg.Database.DSN) == store.DBTypeSQLite {
		return cfg.Database.DSN
	}
	return safeURL(cfg.Database.DSN)
}

func safeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparsable)"
	}
	return u.Redacted()
}

func checkMCPProxy(w io.Writer, name, configPath string) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Fprintf(w, "  ⬚  %s: no config found\n", name)
		return
	}

	var configMap map[string]interface{}
	if err := json.Unmarshal(data, &configMap); err != nil {
		fmt.Fprintf(w, "  ⚠  %s: unreadable config (%s)\n", name, configPath)
		return
	}
	servers, ok := configMap["mcpServers"].(map[string]interface{})
	if !ok || len(servers) == 0 {
		fmt.Fprintf(w, "  ⬚  %s: no MCP servers configured\n", name)
		return
	}

	proxied := 0
	for _, v := range servers {
		serverMap, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		command, _ := serverMap["command"].(string)
		if filepath.Base(command) == "rostershield" {
			proxied++
		}
	}

	switch {
	case proxied == 0:
		fmt.Fprintf(w, "  ⚠  %s: %d server(s) NOT proxied (%s)\n", name, len(servers), configPath)
	case proxied == len(servers):
		fmt.Fprintf(w, "  ✅ %s: %d/%d server(s) proxied (%s)\n", name, proxied, len(servers), configPath)
	default:
		fmt.Fprintf(w, "  ⚠  %s: %d/%d server(s) proxied (%s)\n", name, proxied, len(servers), configPath)
	}
}

func checkAuditLog(w io.Writer, path string) {
	if path == "" {
		fmt.Fprintln(w, "  ⬚  No audit log path configured")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(w, "  ⬚  %s (not yet created, starts on first proxied call)\n", path)
		return
	}

	sizeKB := info.Size() / 1024
	if sizeKB == 0 {
		fmt.Fprintf(w, "  ✅ %s (<1 KB)\n", path)
	} else {
		fmt.Fprintf(w, "  ✅ %s (%d KB)\n", path, sizeKB)
	}
}

func claudeDesktopConfigPath() string {
	home := os.Getenv("HOME")
	candidates := []string{
		filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"),
		filepath.Join(home, ".config", "claude", "claude_desktop_config.json"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
