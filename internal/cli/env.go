package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/gzhole/rostershield/internal/config"
	auditlog "github.com/gzhole/rostershield/internal/logger"
	"github.com/gzhole/rostershield/internal/mcp"
	"github.com/gzhole/rostershield/internal/rostercache"
	"github.com/gzhole/rostershield/internal/service"
	"github.com/gzhole/rostershield/internal/store"
)

// env is what every command that touches rosters needs.
type env struct {
	cfg   *config.Config
	owner string
	store store.RosterStore
	redis *redis.Client
	svc   *service.Service
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if ownerID != "" {
		cfg.OwnerID = ownerID
	}
	if dsnFlag != "" {
		cfg.Database.DSN = dsnFlag
	}
	if redisFlag != "" {
		cfg.Redis.URL = redisFlag
	}
	return cfg, nil
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ttl, err := cfg.CacheTTL()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster store: %w", err)
	}
	logger.Debug.Printf("Roster store: %s", store.DBType(cfg.Database.DSN))

	e := &env{cfg: cfg, owner: cfg.OwnerID, store: st}

	var contexts rostercache.ContextStore = rostercache.NewMemoryContextStore()
	if cfg.Redis.URL != "" {
		client, err := rostercache.OpenRedis(ctx, cfg.Redis.URL)
		if err != nil {
			st.Close()
			return nil, err
		}
		e.redis = client
		contexts = rostercache.NewRedisContextStore(client)
		logger.Debug.Printf("Course contexts shared through redis")
	}

	e.svc = service.New(st, contexts, rostercache.WithTTL(ttl))
	return e, nil
}

func (e *env) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	_ = e.store.Close()
}

// auditSink opens the audit log and adapts it to the proxies' callback. A log
// that cannot be opened only produces a warning.
func auditSink(path, owner string, stderr io.Writer, prefix string) (mcp.AuditFunc, func()) {
	audit, err := auditlog.New(path)
	if err != nil {
		fmt.Fprintf(stderr, "%s warning: audit log open failed: %v\n", prefix, err)
		return nil, func() {}
	}
	onAudit := func(entry mcp.AuditEntry) {
		err := audit.Log(auditlog.AuditEvent{
			Timestamp:  entry.Timestamp,
			Source:     entry.Source,
			Direction:  entry.Direction,
			Method:     entry.Method,
			ToolName:   entry.ToolName,
			OwnerID:    owner,
			CourseID:   entry.CourseID,
			Outcome:    entry.Outcome,
			Tokens:     entry.Tokens,
			OneWay:     entry.OneWay,
			Unresolved: entry.Unresolved,
			Error:      entry.Error,
		})
		if err != nil {
			fmt.Fprintf(stderr, "%s warning: audit write failed: %v\n", prefix, err)
		}
	}
	return onAudit, func() { _ = audit.Close() }
}

// logToStderr moves the service loggers off stdout, which carries JSON-RPC in
// stdio proxy mode.
func logToStderr() {
	for _, l := range []any{logger.Info, logger.Debug, logger.Error} {
		if w, ok := l.(interface{ SetOutput(io.Writer) }); ok {
			w.SetOutput(os.Stderr)
		}
	}
}
