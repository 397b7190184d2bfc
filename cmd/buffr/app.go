package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/buffr/internal/api"
	"github.com/p-blackswan/buffr/internal/chain"
	"github.com/p-blackswan/buffr/internal/config"
	"github.com/p-blackswan/buffr/internal/github"
	"github.com/p-blackswan/buffr/internal/health"
	"github.com/p-blackswan/buffr/internal/integration"
	"github.com/p-blackswan/buffr/internal/jira"
	"github.com/p-blackswan/buffr/internal/llm"
	"github.com/p-blackswan/buffr/internal/metrics"
	"github.com/p-blackswan/buffr/internal/notion"
	"github.com/p-blackswan/buffr/internal/project"
	"github.com/p-blackswan/buffr/internal/prompt"
	"github.com/p-blackswan/buffr/internal/resolver"
	"github.com/p-blackswan/buffr/internal/slack"
	"github.com/p-blackswan/buffr/internal/store"
	"github.com/p-blackswan/buffr/internal/tool"
	"github.com/p-blackswan/buffr/internal/workitem"
)

// app holds every wired service. Commands build one and use what they need.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	db           *store.Store
	metrics      *metrics.Metrics
	projects     *project.Store
	prompts      *prompt.Store
	integrations *integration.Store
	registrar    *integration.Registrar
	tools        *tool.Registry
	resolver     *resolver.Resolver
	chain        *chain.Chain
	workItems    *workitem.Aggregator
	notifier     *slack.Notifier
	checker      *health.Checker
}

// envDefaults maps the environment credentials onto per-service defaults.
// Stored tool configs override them.
func envDefaults(cfg *config.Config) integration.Defaults {
	return integration.Defaults{
		integration.ServiceGitHub: {Token: cfg.GitHubToken},
		integration.ServiceNotion: {Token: cfg.NotionToken, DefaultRef: cfg.NotionDatabaseID},
		integration.ServiceJira: {
			Token:      cfg.JiraAPIToken,
			BaseURL:    cfg.JiraBaseURL,
			Email:      cfg.JiraAPIEmail,
			DefaultRef: cfg.JiraProjectKey,
		},
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	db, err := store.New(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
		checker: health.NewChecker(logger),
	}
	a.projects = project.NewStore(db, logger)
	a.prompts = prompt.NewStore(db, a.projects, logger)
	a.integrations = integration.NewStore(db, envDefaults(cfg), logger)

	// GitHub: stored or env token first, App installation as fallback
	var appAuth *github.AppAuth
	if cfg.GitHubAppEnabled() {
		appAuth, err = github.NewAppAuth(cfg.GitHubAppID, cfg.GitHubInstallationID, cfg.GitHubPrivateKeyPath, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to init GitHub App auth (non-fatal)")
			appAuth = nil
		} else {
			appAuth.OnToken(a.metrics.SetGitHubTokens)
			logger.Info().Int64("app_id", cfg.GitHubAppID).Msg("GitHub App auth initialized")
		}
	}
	ghSvc := github.NewService(a.integrations, appAuth, logger)
	jiraSvc := jira.NewService(a.integrations, logger)
	notionSvc := notion.NewService(a.integrations, logger)

	a.tools = tool.NewRegistry(tool.WithRecorder(a.metrics), tool.WithLogger(logger))
	a.tools.Register(github.NewIssuesTool(ghSvc))
	a.tools.Register(github.NewPullsTool(ghSvc))
	a.tools.Register(github.NewRepoTool(ghSvc))
	a.tools.Register(jira.NewIssuesTool(jiraSvc))
	a.tools.Register(jira.NewIssueTool(jiraSvc))
	a.tools.Register(notion.NewTasksTool(notionSvc))
	a.tools.Register(notion.NewSearchTool(notionSvc))

	a.workItems = workitem.NewAggregator(logger,
		workitem.WithFetcher(project.SourceGitHub, workitem.GitHubFetcher(ghSvc)),
		workitem.WithFetcher(project.SourceNotion, workitem.NotionFetcher(notionSvc)),
		workitem.WithFetcher(project.SourceJira, workitem.JiraFetcher(jiraSvc)),
		workitem.WithCache(cfg.WorkItemCacheSize, cfg.WorkItemCacheTTL),
		workitem.WithRecorder(a.metrics),
	)
	a.tools.Register(workitem.NewTool(a.workItems, a.projects))

	a.registrar = integration.NewRegistrar(a.integrations, a.tools, nil, logger)
	if _, err := a.registrar.Sync(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("registering custom integrations: %w", err)
	}

	a.resolver = resolver.New(a.tools, logger,
		resolver.WithCallTimeout(cfg.ToolTimeout),
		resolver.WithParallelism(cfg.ToolConcurrency),
	)

	// Without a key the provider answers ErrNotConfigured, which the API
	// reports as 503.
	provider := llm.NewAnthropicProvider(cfg.AnthropicAPIKey,
		llm.WithModel(cfg.LLMModel),
		llm.WithMaxTokens(cfg.LLMMaxTokens),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout}),
		llm.WithLogger(logger),
	)
	a.chain = chain.New(provider, logger,
		chain.WithMaxTokens(cfg.LLMMaxTokens),
		chain.WithRecorder(a.metrics),
	)

	a.notifier = slack.NewNotifier(cfg.SlackWebhookURL, logger)

	a.checker.Register("db", health.PingCheck(db.Ping))
	a.checker.Register("llm", health.ConfiguredCheck(cfg.LLMEnabled))
	for _, svc := range integration.Services {
		a.checker.Register(svc, health.ConfiguredCheck(func() bool {
			return a.integrations.Configured(context.Background(), svc)
		}))
	}

	return a, nil
}

// server builds the HTTP API over the app's services.
func (a *app) server() *api.Server {
	return api.NewServer(api.Config{
		ListenAddr: a.cfg.HTTPAddr,
		Auth: api.AuthConfig{
			Mode:   a.cfg.AuthMode,
			APIKey: a.cfg.APIKey,
		},
		RateLimit: api.RateLimitConfig{
			RPS:   a.cfg.RateLimitRPS,
			Burst: a.cfg.RateLimitBurst,
		},
		CORSOrigins: a.cfg.CORSOrigins,
	}, api.Deps{
		Projects:     a.projects,
		Prompts:      a.prompts,
		Integrations: a.integrations,
		Registrar:    a.registrar,
		Tools:        a.tools,
		Resolver:     a.resolver,
		Chain:        a.chain,
		WorkItems:    a.workItems,
		Notifier:     a.notifier,
		Checker:      a.checker,
		Metrics:      a.metrics,
	}, a.logger)
}

func (a *app) Close() error {
	return a.db.Close()
}
