// Command oktaqueryd is the HTTP/SSE server entrypoint: it wires every
// pipeline component (spec.md §4's C1-C6) from resolved config and
// serves spec.md §6.1's routes until terminated.
//
// Grounded on the teacher's cmd/tarsy/main.go: flag.String("config-dir",
// getEnv(...)) plus godotenv.Load(), config.Initialize, database.NewClient
// with a deferred Close, gin.SetMode, then constructing services in
// dependency order before handing them to the HTTP layer.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/fctr-io/okta-query-engine/pkg/api"
	"github.com/fctr-io/okta-query-engine/pkg/catalog"
	"github.com/fctr-io/okta-query-engine/pkg/config"
	"github.com/fctr-io/okta-query-engine/pkg/database"
	"github.com/fctr-io/okta-query-engine/pkg/events"
	"github.com/fctr-io/okta-query-engine/pkg/executor"
	"github.com/fctr-io/okta-query-engine/pkg/formatter"
	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/masking"
	"github.com/fctr-io/okta-query-engine/pkg/phaseagent"
	"github.com/fctr-io/okta-query-engine/pkg/planner"
	"github.com/fctr-io/okta-query-engine/pkg/process"
	"github.com/fctr-io/okta-query-engine/pkg/router"
	"github.com/fctr-io/okta-query-engine/pkg/safety"
	"github.com/fctr-io/okta-query-engine/pkg/sandbox"
	"github.com/fctr-io/okta-query-engine/pkg/transport"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	// Every binary in this module can be re-exec'd as a sandbox child —
	// this check MUST run before any other startup logic (spec.md §6.5).
	if len(os.Args) > 1 && os.Args[1] == sandbox.SubcommandName {
		os.Exit(sandbox.RunSubcommand())
	}

	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "directory holding config.yaml")
	flag.Parse()

	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dbClient, err := database.NewClient(ctx, database.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		MigrationsPath:  cfg.Database.MigrationsPath,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.DB().Close()

	tenantCatalog, err := catalog.Load(cfg.Tenant.CatalogPath)
	if err != nil {
		log.Fatalf("failed to load tenant catalog: %v", err)
	}

	llmAPIKey := os.Getenv(cfg.LLM.APIKeyEnv)
	tenantToken := os.Getenv(cfg.Tenant.APITokenEnv)

	retryCfg := transport.Config{
		MaxAttempts:     cfg.LLM.Retry.MaxAttempts,
		BaseWait:        cfg.LLM.Retry.BaseWait,
		MaxWait:         cfg.LLM.Retry.MaxWait,
		RateLimitPerSec: cfg.LLM.Retry.RateLimitPerSec,
		RateLimitBurst:  cfg.LLM.Retry.RateLimitBurst,
		AgentLabel:      cfg.LLM.Provider,
	}
	llmHTTPClient := &http.Client{
		Transport: transport.New(nil, retryCfg, func(evt transport.ProgressEvent) {
			slog.Warn("LLM transport retrying", "attempt", evt.Attempt, "wait_seconds", evt.WaitSeconds, "reason", evt.Reason, "agent", evt.AgentLabel)
		}),
		Timeout: cfg.LLM.RequestTimeout,
	}
	llmClient := llmagent.NewOpenAIClient(llmHTTPClient, llmagent.OpenAIConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  llmAPIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.RequestTimeout,
	})

	toolRegistry := phaseagent.NewRegistry()
	toolRegistry.Register(phaseagent.AccessAnalysisDescriptor)

	tenantAPICfg := sandbox.TenantAPIConfig{
		BaseURL:           cfg.Tenant.Host,
		Token:             tenantToken,
		TenantHost:        cfg.Tenant.Host,
		AllowedPathPrefix: cfg.Safety.AllowedURLPaths,
		BlockedHostSubstr: cfg.Safety.BlockedHostSubstr,
		RequestTimeout:    cfg.LLM.RequestTimeout,
		Retry:             retryCfg,
	}
	tenantAPIClient := sandbox.NewTenantAPIClient(tenantAPICfg, tenantCatalog)

	dataOpValidator := safety.NewDataOpValidator(cfg.Safety.AllowedDataOps, cfg.Safety.BlockedDataOps)
	codeValidator := safety.NewCodeValidator(dataOpValidator)

	sandboxRunner := sandbox.NewRunner(sandbox.Config{
		Timeout:        cfg.Sandbox.WallClockTimeout,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		AllowedEnvKeys: cfg.Sandbox.AllowedEnvKeys,
	})

	oktaRouter := router.NewRouter(llmClient, toolRegistry.RouterDescriptors())
	prePlanner := planner.NewPrePlanner(llmClient)
	plnr := planner.NewPlanner(llmClient)
	planBuilder := process.NewPlanBuilder(prePlanner, plnr, tenantCatalog)

	sqlDiscovery := phaseagent.NewSQLDiscoveryAgent(llmClient)
	apiDiscovery := phaseagent.NewAPIDiscoveryAgent(llmClient, tenantCatalog)

	processStore := database.NewProcessStore(dbClient)
	eventManager := events.NewManager()
	eventPublisher := events.NewPublisher(eventManager)
	logMasker := masking.NewService()

	sqlRunner := executor.NewSQLRunner(dbClient.DB(), 0, cfg.LLM.RequestTimeout)
	artifactLog := executor.NewArtifactLog(getEnv("ARTIFACT_LOG_DIR", "./logs"))
	stepExecutor := executor.New(
		cfg.Executor,
		cfg.LLM.Model,
		codeValidator,
		sqlRunner,
		sandboxRunner,
		tenantAPICfg,
		tenantCatalog,
		sqlDiscovery,
		apiDiscovery,
		processStore,
		eventPublisher,
		artifactLog,
		logMasker,
	)

	resultFormatter := formatter.New(
		llmClient,
		codeValidator,
		sandboxRunner,
		tenantAPICfg,
		tenantCatalog,
		cfg.LLM.Model,
		cfg.Formatter.TokenThreshold,
	)

	specialToolsHandler := phaseagent.NewHandler(llmClient, toolRegistry, tenantAPIClient)

	processRegistry := process.NewRegistry()
	driver := process.NewDriver(
		processStore,
		processRegistry,
		eventPublisher,
		oktaRouter,
		planBuilder,
		stepExecutor,
		resultFormatter,
		specialToolsHandler,
		logMasker,
	)

	gin.SetMode(getEnv("GIN_MODE", "release"))
	server := api.NewServer(driver, eventManager, toolRegistry, dbClient, cfg.Server.AllowedCORSOrigin)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	slog.Info("oktaqueryd listening", "address", addr)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
