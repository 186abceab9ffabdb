// Command oktaqueryctl is the non-interactive/interactive CLI surface
// spec.md §6.3 describes: a positional query argument or --interactive
// loop, with --script-only stopping after Synthesis instead of running
// the full pipeline to a displayed result.
//
// Grounded on the teacher's cmd/tarsy/main.go for dependency wiring order
// (config.Initialize, database.NewClient, then services in dependency
// order) and on flag.String-based CLI parsing — no example repo in the
// corpus pulls in a CLI framework such as cobra, so this follows
// cmd/oktaqueryd's own use of the standard flag package.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/catalog"
	"github.com/fctr-io/okta-query-engine/pkg/config"
	"github.com/fctr-io/okta-query-engine/pkg/database"
	"github.com/fctr-io/okta-query-engine/pkg/events"
	"github.com/fctr-io/okta-query-engine/pkg/executor"
	"github.com/fctr-io/okta-query-engine/pkg/formatter"
	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/masking"
	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/phaseagent"
	"github.com/fctr-io/okta-query-engine/pkg/planner"
	"github.com/fctr-io/okta-query-engine/pkg/process"
	"github.com/fctr-io/okta-query-engine/pkg/router"
	"github.com/fctr-io/okta-query-engine/pkg/safety"
	"github.com/fctr-io/okta-query-engine/pkg/sandbox"
	"github.com/fctr-io/okta-query-engine/pkg/transport"
	"github.com/joho/godotenv"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// deps bundles every collaborator both run modes need, built once from
// resolved config — the same dependency graph cmd/oktaqueryd wires,
// minus the HTTP layer.
type deps struct {
	driver       *process.Driver
	router       *router.Router
	planBuilder  process.PlanBuilder
	stepExecutor *executor.Executor
	synthesis    *phaseagent.SynthesisAgent
	artifactLog  *executor.ArtifactLog
	logsDir      string
}

func buildDeps(ctx context.Context, configDir string) (*deps, func(), error) {
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	dbClient, err := database.NewClient(ctx, database.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		MigrationsPath:  cfg.Database.MigrationsPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup := func() { _ = dbClient.DB().Close() }

	tenantCatalog, err := catalog.Load(cfg.Tenant.CatalogPath)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to load tenant catalog: %w", err)
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

	logsDir := getEnv("ARTIFACT_LOG_DIR", "./logs")
	sqlRunner := executor.NewSQLRunner(dbClient.DB(), 0, cfg.LLM.RequestTimeout)
	artifactLog := executor.NewArtifactLog(logsDir)
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
	synthesisAgent := phaseagent.NewSynthesisAgent(llmClient)

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

	return &deps{
		driver:       driver,
		router:       oktaRouter,
		planBuilder:  planBuilder,
		stepExecutor: stepExecutor,
		synthesis:    synthesisAgent,
		artifactLog:  artifactLog,
		logsDir:      logsDir,
	}, cleanup, nil
}

func main() {
	// Every binary in this module can be re-exec'd as a sandbox child —
	// this check MUST run before any other startup logic (spec.md §6.5).
	if len(os.Args) > 1 && os.Args[1] == sandbox.SubcommandName {
		os.Exit(sandbox.RunSubcommand())
	}

	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "directory holding config.yaml")
	interactive := flag.Bool("interactive", false, "read queries from stdin in a loop instead of taking one positional argument")
	scriptOnly := flag.Bool("script-only", false, "stop after Synthesis and write the generated script to disk; do not execute it")
	userIdentity := flag.String("user", "", "identity recorded against the query, for audit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	ctx := context.Background()
	d, cleanup, err := buildDeps(ctx, *configDir)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer cleanup()

	if *interactive {
		runInteractive(ctx, d, *scriptOnly, *userIdentity)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: oktaqueryctl [--script-only] [--user identity] <query> | --interactive")
		os.Exit(2)
	}
	query := strings.Join(args, " ")

	os.Exit(runOne(ctx, d, query, *scriptOnly, *userIdentity))
}

func runInteractive(ctx context.Context, d *deps, scriptOnly bool, userIdentity string) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("oktaqueryctl interactive mode — enter a query, or Ctrl-D to quit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		runOne(ctx, d, query, scriptOnly, userIdentity)
	}
}

// runOne drives one query to completion and returns a process exit code:
// 0 on a completed result, non-zero otherwise (spec.md §6.3: "Non-
// interactive mode exits 0 on completed, non-zero otherwise").
func runOne(ctx context.Context, d *deps, query string, scriptOnly bool, userIdentity string) int {
	if scriptOnly {
		return runScriptOnly(ctx, d, query)
	}

	plan, err := d.driver.StartProcess(ctx, query, userIdentity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start process: %v\n", err)
		return 1
	}
	fmt.Printf("process %s: %s\n", plan.ProcessID, plan.Reasoning)
	for _, step := range plan.Steps {
		fmt.Printf("  [%s] %s %s.%s — %s\n", step.ID, step.ToolName, step.Entity, step.Operation, step.Reason)
	}

	if err := d.driver.Execute(plan.ProcessID); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start execution: %v\n", err)
		return 1
	}

	record := pollUntilTerminal(ctx, d, plan.ProcessID)
	if record == nil {
		fmt.Fprintln(os.Stderr, "timed out waiting for process to finish")
		return 1
	}

	switch models.ProcessStatus(record.Status) {
	case models.StatusCompleted:
		fmt.Println(record.ResultContent)
		return 0
	case models.StatusCancelled:
		fmt.Fprintln(os.Stderr, "query was cancelled")
		return 1
	default:
		fmt.Fprintf(os.Stderr, "query failed: %s\n", record.ErrorMessage)
		return 1
	}
}

func pollUntilTerminal(ctx context.Context, d *deps, processID string) *database.ProcessRecord {
	deadline := time.Now().Add(10 * time.Minute)
	for time.Now().Before(deadline) {
		record, err := d.driver.Lookup(ctx, processID)
		if err != nil {
			time.Sleep(250 * time.Millisecond)
			continue
		}
		if models.ProcessStatus(record.Status).Terminal() {
			return record
		}
		time.Sleep(250 * time.Millisecond)
	}
	return nil
}

// runScriptOnly classifies and plans the query, runs the Step Executor
// directly to populate the artifacts log, then hands the artifacts to
// the Synthesis Agent and writes its script to disk without executing
// it — spec.md §6.3's "stop after Synthesis and print the script to
// disk; do not execute." The artifacts file is Synthesis's designed
// hand-off (spec.md §6.5: "Used by Synthesis to see prior work without
// re-prompting"), so this reads it back rather than threading Synthesis
// through process.Driver's in-memory call chain.
func runScriptOnly(ctx context.Context, d *deps, query string) int {
	correlationID := fmt.Sprintf("script-%d", time.Now().UnixNano())

	sanitized := router.Sanitize(query)
	for _, w := range sanitized.Warnings {
		slog.Warn("sanitizer warning", "correlation_id", correlationID, "warning", w)
	}

	route, err := d.router.Run(ctx, correlationID, sanitized.Sanitized)
	if err != nil {
		fmt.Fprintf(os.Stderr, "routing failed: %v\n", err)
		return 1
	}
	if route.Phase == models.PhaseSpecial {
		fmt.Fprintln(os.Stderr, "query classified as a special-tool request; --script-only only applies to SQL/API discovery queries")
		return 1
	}

	plan, err := d.planBuilder.Run(ctx, correlationID, sanitized.Sanitized)
	if err != nil {
		fmt.Fprintf(os.Stderr, "planning failed: %v\n", err)
		return 1
	}
	fmt.Printf("plan: %s\n", plan.Reasoning)

	result := d.stepExecutor.Execute(ctx, correlationID, plan, func() bool { return false })
	if result.Status == models.StatusError {
		fmt.Fprintf(os.Stderr, "step execution failed: %v\n", result.Err)
		return 1
	}

	artifacts, err := d.artifactLog.ReadAll(correlationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read back artifacts: %v\n", err)
		return 1
	}

	synth, err := d.synthesis.Run(ctx, correlationID, query, artifacts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "synthesis failed: %v\n", err)
		return 1
	}

	if synth.IsNarrative {
		fmt.Println(synth.Narrative)
		return 0
	}

	scriptDir := filepath.Join(d.logsDir, "scripts")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create scripts directory: %v\n", err)
		return 1
	}
	scriptPath := filepath.Join(scriptDir, correlationID+".dsl")
	if err := os.WriteFile(scriptPath, []byte(synth.Script.SourceText), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write script: %v\n", err)
		return 1
	}
	fmt.Printf("script written to %s (entry variable %q)\n", scriptPath, synth.Script.EntryVariableName)
	return 0
}
