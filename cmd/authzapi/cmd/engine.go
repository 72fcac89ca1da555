package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/uptrace/bun"

	"github.com/J41RO/MeStore-sub006/internal/db/bunx"
	"github.com/J41RO/MeStore-sub006/internal/repository"
	"github.com/J41RO/MeStore-sub006/internal/services/audit"
	"github.com/J41RO/MeStore-sub006/internal/services/authz"
	"github.com/J41RO/MeStore-sub006/internal/services/catalog"
	"github.com/J41RO/MeStore-sub006/internal/telemetry"
)

// engine bundles the wired decision service with the resources behind it,
// so every subcommand builds and tears down the stack the same way.
type engine struct {
	db    *bun.DB
	audit *audit.Logger
	svc   authz.Service
}

func buildEngine(ctx context.Context) (*engine, error) {
	db, err := bunx.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Printf("Connected to database")

	wired := false
	defer func() {
		if !wired {
			_ = bunx.Close(db)
		}
	}()

	principalRepo := repository.NewBunPrincipalRepository(db)
	permissionRepo := repository.NewBunPermissionRepository(db)
	grantRepo := repository.NewBunGrantRepository(db)
	auditRepo := repository.NewBunAuditRepository(db)

	decisionMetrics, err := telemetry.NewDecisionMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create decision metrics: %w", err)
	}
	grantMetrics, err := telemetry.NewGrantMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create grant metrics: %w", err)
	}
	auditMetrics, err := telemetry.NewAuditMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create audit metrics: %w", err)
	}

	auditLogger, err := audit.NewLogger(audit.LoggerDependencies{
		Repo:    auditRepo,
		Metrics: auditMetrics,
	}, audit.LoggerConfig{
		RedrivePerSecond: cfg.Audit.RedrivePerSecond,
		DeadLetterLimit:  cfg.Audit.DeadLetterLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}
	defer func() {
		if !wired {
			closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = auditLogger.Close(closeCtx)
		}
	}()

	loader, err := catalog.NewLoader(permissionRepo)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog loader: %w", err)
	}

	var cache authz.DecisionCache
	if !cfg.Cache.Disabled {
		cache = authz.NewLRUDecisionCache(cfg.Cache.Size, cfg.Cache.TTL)
	}

	svc, err := authz.NewService(authz.Dependencies{
		Principals:      principalRepo,
		Permissions:     permissionRepo,
		Grants:          grantRepo,
		Cache:           cache,
		Audit:           auditLogger,
		Catalog:         loader,
		DecisionMetrics: decisionMetrics,
		GrantMetrics:    grantMetrics,
	}, authz.Config{
		RetentionDays:   cfg.Audit.RetentionDays,
		SweepBatchLimit: cfg.Sweep.BatchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create access service: %w", err)
	}

	wired = true
	return &engine{db: db, audit: auditLogger, svc: svc}, nil
}

// Close drains the audit queue, then closes the database under it.
func (e *engine) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.audit.Close(ctx); err != nil {
		log.Printf("WARNING: audit logger shutdown: %v", err)
	}
	if err := bunx.Close(e.db); err != nil {
		log.Printf("WARNING: database close: %v", err)
	}
}
