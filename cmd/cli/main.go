package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v55/github"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/devpulse-io/devpulse/internal/aggregator"
	"github.com/devpulse-io/devpulse/internal/collector"
	"github.com/devpulse-io/devpulse/internal/config"
	"github.com/devpulse-io/devpulse/internal/domain"
	"github.com/devpulse-io/devpulse/internal/logger"
	"github.com/devpulse-io/devpulse/internal/storage"
	"github.com/devpulse-io/devpulse/internal/storage/postgres"
	"github.com/devpulse-io/devpulse/internal/storage/sqlite"
)

var (
	cfgFile     string
	outputJSON  bool
	rangeExpr   string
	startDate   string
	endDate     string
	granularity string

	teamsFlag   []string
	filtersFlag []string
	membersFlag []string
	workersFlag int
	noAux       bool
)

var rootCmd = &cobra.Command{
	Use:   "devpulse",
	Short: "Engineering activity collection and reporting",
	Long: `DevPulse collects engineering activity from GitHub and Jira and stores
it locally for reporting.

The collect command resolves an organization's working set, pulls pull
requests, reviews, commits, releases and issues for a date window, and
stores the run. The reporting commands read stored runs and print
aggregated views.`,
}

var collectCmd = &cobra.Command{
	Use:   "collect [org]",
	Short: "Collect activity from the configured sources",
	Long: `Collect activity data for an organization from GitHub and/or Jira and
store the run locally. Sources are enabled by configuration: GITHUB_TOKEN
turns on GitHub collection, JIRA_BASE_URL turns on Jira collection.`,
	Args: cobra.ExactArgs(1),
	RunE: runCollect,
}

var summaryCmd = &cobra.Command{
	Use:   "summary [org]",
	Short: "Show the organization activity summary",
	Long:  `Display aggregated activity for an organization over a date window.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

var membersCmd = &cobra.Command{
	Use:   "members [org]",
	Short: "Show per-member activity",
	Long:  `Display the per-member activity breakdown for an organization.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runMembers,
}

var statusCmd = &cobra.Command{
	Use:   "status [org]",
	Short: "Show the most recent collection run",
	Long:  `Display the trace of the most recent stored collection run for an organization.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var reposCmd = &cobra.Command{
	Use:   "repos [org]",
	Short: "Show the resolved repository working set",
	Long: `Resolve and display the repository working set for an organization.
Resolution goes through the working-set cache, so a recent run answers
without hitting the GitHub API.`,
	Args: cobra.ExactArgs(1),
	RunE: runRepos,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&rangeExpr, "range", "", `date window ("90d", "12w", "6m", "Q1-2025", "2025-01-01:2025-03-31")`)
	rootCmd.PersistentFlags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD), ignored when --range is set")
	rootCmd.PersistentFlags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD), ignored when --range is set")
	rootCmd.PersistentFlags().StringVar(&granularity, "granularity", "day", "time granularity (day, week, month)")

	collectCmd.Flags().StringSliceVar(&teamsFlag, "teams", nil, "team slugs that scope the working set and member roster")
	collectCmd.Flags().StringSliceVar(&filtersFlag, "filters", nil, "Jira saved filter ids or project keys")
	collectCmd.Flags().StringSliceVar(&membersFlag, "members", nil, "explicit member identities, overrides team rosters")
	collectCmd.Flags().IntVar(&workersFlag, "workers", 0, "fan-out worker count (default from config)")
	collectCmd.Flags().BoolVar(&noAux, "no-aux", false, "skip expensive per-item expansions")

	reposCmd.Flags().StringSliceVar(&teamsFlag, "teams", nil, "team slugs that scope the working set")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(membersCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reposCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		if err := godotenv.Load(cfgFile); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", cfgFile, err)
		}
	}
	return config.Load()
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

// getTimeRange resolves the reporting window from flags, defaulting to
// the last month. Malformed --start/--end values fall back silently;
// a malformed --range is an error since it was clearly intentional.
func getTimeRange() (domain.TimeRange, error) {
	if rangeExpr != "" {
		window, err := config.ParseDateRange(rangeExpr, time.Now().UTC())
		if err != nil {
			return domain.TimeRange{}, fmt.Errorf("invalid --range: %w", err)
		}
		return domain.TimeRange{Start: window.Since, End: window.Until, Granularity: granularity}, nil
	}

	now := time.Now().UTC()
	start := now.AddDate(0, -1, 0)
	end := now

	if startDate != "" {
		if t, err := time.Parse("2006-01-02", startDate); err == nil {
			start = t
		}
	}
	if endDate != "" {
		if t, err := time.Parse("2006-01-02", endDate); err == nil {
			end = t
		}
	}

	return domain.TimeRange{Start: start, End: end, Granularity: granularity}, nil
}

// getWindow resolves the collection window. Flags win over the
// configured default range.
func getWindow(cfg *config.Config) (domain.DateWindow, error) {
	if rangeExpr == "" && startDate == "" && endDate == "" {
		return config.ParseDateRange(cfg.DateRange, time.Now().UTC())
	}
	tr, err := getTimeRange()
	if err != nil {
		return domain.DateWindow{}, err
	}
	return domain.DateWindow{Since: tr.Start, Until: tr.End}, nil
}

func retryPolicy(cfg *config.Config) collector.RetryPolicy {
	return collector.RetryPolicy{
		MaxAttempts:    cfg.MaxRetries,
		BaseDelay:      cfg.BaseDelay,
		RateLimitDelay: cfg.RateLimitDelay,
	}
}

func sizing(cfg *config.Config) collector.SizingConfig {
	return collector.SizingConfig{
		SmallThreshold: cfg.SmallThreshold,
		HugeThreshold:  cfg.HugeThreshold,
		BatchSize:      cfg.BatchSize,
		HugeBatchSize:  cfg.HugeBatchSize,
	}
}

// buildGitHub wires the GitHub side: an OAuth2 HTTP client feeding both
// the GraphQL collector and the REST directory client.
func buildGitHub(cfg *config.Config, logr *slog.Logger) (*collector.GitHubCollector, *github.Client) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
	httpClient := oauth2.NewClient(context.Background(), src)
	exec := collector.NewHTTPExecutor(httpClient, cfg.RequestsPerSec, logr)
	retrier := collector.NewRetrier(retryPolicy(cfg), logr)
	gh := collector.NewGitHubCollector(exec, retrier, cfg.GitHubGraphQLURL, sizing(cfg), logr)
	return gh, github.NewClient(httpClient)
}

// buildService assembles the collection engine from configuration. The
// returned github.Client is non-nil only when GitHub is configured and
// exists for the advisory rate-budget probe.
func buildService(cfg *config.Config, store storage.Storage, logr *slog.Logger) (*collector.Service, *github.Client, error) {
	var (
		collectors []collector.SourceCollector
		directory  collector.DirectoryFunc
		members    collector.MemberLister
		ghClient   *github.Client
	)

	if cfg.GitHubToken != "" {
		gh, client := buildGitHub(cfg, logr)
		collectors = append(collectors, gh)
		directory = gh.ResolveRepositories
		ghClient = client
		members = collector.NewMemberDirectory(client, logr)
	}

	if cfg.JiraBaseURL != "" {
		exec := collector.NewHTTPExecutor(nil, cfg.RequestsPerSec, logr)
		retrier := collector.NewRetrier(retryPolicy(cfg), logr)
		jira := collector.NewJiraCollector(exec, retrier, cfg.JiraBaseURL, cfg.JiraEmail, cfg.JiraToken, sizing(cfg), logr)
		collectors = append(collectors, jira)
	}

	if len(collectors) == 0 {
		return nil, nil, fmt.Errorf("no sources configured: set GITHUB_TOKEN or JIRA_BASE_URL")
	}

	resolver := collector.NewResolver(storage.WorkingSets{S: store}, cfg.CacheTTL, directory, logr)
	fanout := &collector.FanOut{Workers: cfg.Workers, UnitTimeout: cfg.UnitTimeout, Log: logr}
	return collector.NewService(resolver, fanout, members, logr, collectors...), ghClient, nil
}

// jiraUnits picks the Jira work units: the --filters flag wins outright,
// otherwise the configured saved filters plus the configured project.
func jiraUnits(cfg *config.Config) []string {
	if len(filtersFlag) > 0 {
		return filtersFlag
	}
	units := append([]string(nil), cfg.JiraFilters...)
	if cfg.JiraProject != "" {
		units = append(units, cfg.JiraProject)
	}
	return units
}

func runCollect(cmd *cobra.Command, args []string) error {
	org := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Org = org
	if workersFlag > 0 {
		cfg.Workers = workersFlag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logr := logger.New(cfg.LogLevel)

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	window, err := getWindow(cfg)
	if err != nil {
		return err
	}

	svc, ghClient, err := buildService(cfg, store, logr)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if ghClient != nil {
		if budget, err := collector.CheckRateBudget(ctx, ghClient); err == nil && budget.Low() {
			fmt.Printf("Warning: GitHub rate budget is low (%d/%d, resets %s); the run may stall on retries\n",
				budget.Remaining, budget.Limit, budget.ResetAt.Format(time.Kitchen))
		}
	}

	teams := teamsFlag
	if len(teams) == 0 {
		teams = cfg.Teams
	}

	fmt.Printf("Collecting activity for %s\n", org)
	fmt.Printf("Window: %s to %s\n", window.Since.Format("2006-01-02"), window.Until.Format("2006-01-02"))

	bundle, run, err := svc.Run(ctx, collector.RunParams{
		Org:        org,
		Teams:      teams,
		JiraUnits:  jiraUnits(cfg),
		Window:     window,
		Members:    membersFlag,
		IncludeAux: !noAux,
	})
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	fmt.Printf("Collected %d records (%d PRs, %d reviews, %d commits, %d releases, %d issues)\n",
		bundle.Count(), len(bundle.PullRequests), len(bundle.Reviews),
		len(bundle.Commits), len(bundle.Releases), len(bundle.Issues))
	fmt.Printf("Units: %d successful, %d partial, %d failed\n",
		len(run.Status.Successful), len(run.Status.Partial), len(run.Status.Failed))
	if len(run.Status.Failed) > 0 {
		fmt.Printf("Failed: %s\n", strings.Join(run.Status.Failed, ", "))
	}

	if !run.Reliable {
		fmt.Println("Run is unreliable (failures outnumber successes); not storing it.")
		return nil
	}

	if err := store.SaveRun(ctx, run, bundle); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	fmt.Printf("Run %s stored.\n", run.ID)
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	org := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	agg := aggregator.NewAggregator(store)
	ctx := context.Background()
	tr, err := getTimeRange()
	if err != nil {
		return err
	}

	summary, err := agg.Summary(ctx, org, tr)
	if err != nil {
		return fmt.Errorf("failed to get summary: %w", err)
	}

	if outputJSON {
		return printJSON(summary)
	}

	fmt.Printf("\nActivity Summary: %s\n", org)
	fmt.Printf("Window: %s to %s\n\n", tr.Start.Format("2006-01-02"), tr.End.Format("2006-01-02"))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Pull Requests", fmt.Sprintf("%d", summary.PullRequests)})
	table.Append([]string{"Merged Pull Requests", fmt.Sprintf("%d", summary.MergedPullRequests)})
	table.Append([]string{"Reviews", fmt.Sprintf("%d", summary.Reviews)})
	table.Append([]string{"Commits", fmt.Sprintf("%d", summary.Commits)})
	table.Append([]string{"Releases", fmt.Sprintf("%d", summary.Releases)})
	table.Append([]string{"Production Releases", fmt.Sprintf("%d", summary.ProductionReleases)})
	table.Append([]string{"Staging Releases", fmt.Sprintf("%d", summary.StagingReleases)})
	table.Append([]string{"Issues", fmt.Sprintf("%d", summary.Issues)})
	table.Append([]string{"Resolved Issues", fmt.Sprintf("%d", summary.ResolvedIssues)})
	table.Append([]string{"Lines Added", fmt.Sprintf("%d", summary.Additions)})
	table.Append([]string{"Lines Deleted", fmt.Sprintf("%d", summary.Deletions)})
	table.Append([]string{"Median PR Cycle (hours)", fmt.Sprintf("%.1f", summary.MedianPRCycleHours)})
	table.Render()

	return nil
}

func runMembers(cmd *cobra.Command, args []string) error {
	org := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	agg := aggregator.NewAggregator(store)
	ctx := context.Background()
	tr, err := getTimeRange()
	if err != nil {
		return err
	}

	members, err := agg.MembersActivity(ctx, org, tr)
	if err != nil {
		return fmt.Errorf("failed to get member activity: %w", err)
	}

	if outputJSON {
		return printJSON(members)
	}

	fmt.Printf("\nMember Activity: %s\n", org)
	fmt.Printf("Window: %s to %s\n\n", tr.Start.Format("2006-01-02"), tr.End.Format("2006-01-02"))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Member", "PRs", "Reviews", "Commits", "Issues", "Additions", "Deletions"})
	for _, m := range members {
		table.Append([]string{
			m.Member,
			fmt.Sprintf("%d", m.PullRequests),
			fmt.Sprintf("%d", m.Reviews),
			fmt.Sprintf("%d", m.Commits),
			fmt.Sprintf("%d", m.Issues),
			fmt.Sprintf("%d", m.Additions),
			fmt.Sprintf("%d", m.Deletions),
		})
	}
	table.Render()

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	org := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	run, err := store.LatestRun(ctx, org)
	if err != nil {
		return fmt.Errorf("failed to get latest run: %w", err)
	}

	if outputJSON {
		return printJSON(run)
	}

	fmt.Printf("\nLatest Collection Run: %s\n\n", org)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.Append([]string{"Run ID", run.ID})
	table.Append([]string{"Window", fmt.Sprintf("%s to %s",
		run.Window.Since.Format("2006-01-02"), run.Window.Until.Format("2006-01-02"))})
	table.Append([]string{"Started", run.StartedAt.Format(time.RFC3339)})
	table.Append([]string{"Finished", run.FinishedAt.Format(time.RFC3339)})
	table.Append([]string{"Duration", run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()})
	table.Append([]string{"Records", fmt.Sprintf("%d", run.Status.RecordCount)})
	table.Append([]string{"Successful Units", fmt.Sprintf("%d", len(run.Status.Successful))})
	table.Append([]string{"Partial Units", fmt.Sprintf("%d", len(run.Status.Partial))})
	table.Append([]string{"Failed Units", fmt.Sprintf("%d", len(run.Status.Failed))})
	table.Append([]string{"Reliable", fmt.Sprintf("%t", run.Reliable)})
	table.Render()

	if len(run.Status.Failed) > 0 {
		fmt.Printf("\nFailed units: %s\n", strings.Join(run.Status.Failed, ", "))
	}

	return nil
}

func runRepos(cmd *cobra.Command, args []string) error {
	org := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required to resolve repositories")
	}

	logr := logger.New(cfg.LogLevel)

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	gh, _ := buildGitHub(cfg, logr)
	resolver := collector.NewResolver(storage.WorkingSets{S: store}, cfg.CacheTTL, gh.ResolveRepositories, logr)

	teams := teamsFlag
	if len(teams) == 0 {
		teams = cfg.Teams
	}

	ctx := context.Background()
	repos, err := resolver.Resolve(ctx, collector.Scope{
		Source: domain.SourceGitHub,
		Org:    org,
		Teams:  teams,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve repositories: %w", err)
	}

	if outputJSON {
		return printJSON(repos)
	}

	fmt.Printf("\nRepository Working Set: %s (%d repositories)\n\n", org, len(repos))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Repository"})
	for _, r := range repos {
		table.Append([]string{r})
	}
	table.Render()

	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
