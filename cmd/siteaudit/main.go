package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/devseo/siteaudit/pkg/audit"
	"github.com/devseo/siteaudit/pkg/config"
	"github.com/devseo/siteaudit/pkg/log"
	"github.com/devseo/siteaudit/pkg/metrics"
	"github.com/devseo/siteaudit/pkg/models"
	"github.com/devseo/siteaudit/pkg/report"
	"github.com/devseo/siteaudit/pkg/storage"
	"github.com/devseo/siteaudit/pkg/watch"
)

const version = "0.4.1"

const timeLayout = "2006-01-02 15:04:05"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "audit":
		runAudit(os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "list-jobs":
		runListJobs(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("siteaudit %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `siteaudit - Website crawler and SEO audit engine

Usage:
  siteaudit <command> [options]

Commands:
  audit       Run an SEO audit against one or more domains
  report      Regenerate the markdown report for a stored job
  list-jobs   List stored audit jobs
  watch       Re-audit domains on a schedule
  validate    Validate configuration file
  version     Show version info

Run 'siteaudit <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file. An empty path means no config
// file was given; the zero config validates to built-in defaults.
func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return &config.AppConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// runAudit handles the audit subcommand
func runAudit(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (optional)")
	domain := fs.String("domain", "", "Domain to audit (single target)")
	domainList := fs.String("domains", "", "Comma-separated domains for parallel audits")
	allTargets := fs.Bool("all-targets", false, "Audit every domain in the config targets section")
	maxPages := fs.Int("max-pages", 0, "Page budget for this run (0 = configured default)")
	logLevel := fs.String("loglevel", "", "Log level (debug, info, warn, error, fatal)")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")
	metricsAddr := fs.String("metrics", "", "Prometheus metrics address (overrides config)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: siteaudit audit [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  siteaudit audit -domain example.com\n")
		fmt.Fprintf(os.Stderr, "  siteaudit audit -domain example.com -max-pages 20\n")
		fmt.Fprintf(os.Stderr, "  siteaudit audit -domains example.com,blog.example.com\n")
		fmt.Fprintf(os.Stderr, "  siteaudit audit --all-targets -config config.yaml\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	domains := splitDomains(*domain, *domainList)
	if !*allTargets && len(domains) == 0 {
		fmt.Fprintln(os.Stderr, "Error: one of -domain, -domains, or --all-targets is required")
		fs.Usage()
		os.Exit(1)
	}

	executeAudit(*configFile, domains, *allTargets, *maxPages, *logLevel, *pprofAddr, *metricsAddr)
}

// executeAudit runs one audit per requested domain and maps the outcome to
// the process exit code. Cancelled audits exit 0; failures exit 1.
func executeAudit(configFile string, domains []string, allTargets bool, maxPages int, logLevelStr, pprofAddr, metricsAddr string) {
	cfg, logger := setupApp(configFile, logLevelStr)
	logAppConfig(cfg, logger)

	if allTargets {
		domains = targetKeys(cfg)
		if len(domains) == 0 {
			logger.Fatal("No targets configured; --all-targets needs a targets section in the config")
		}
		logger.Infof("All targets mode: found %d configured targets", len(domains))
	}

	startPprof(pprofAddr, logger)
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}
	startMetrics(metricsAddr, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := trapSignals(cancel, logger)
	defer stop()

	store, svc := newAuditService(ctx, cfg, logger)
	defer store.Close()

	if len(domains) == 1 {
		job, runErr := svc.Run(ctx, domains[0], maxPages)
		switch {
		case errors.Is(runErr, context.DeadlineExceeded):
			logger.Error("Audit timed out (global audit timeout).")
			os.Exit(1)
		case runErr != nil:
			logger.Errorf("Audit failed: %v", runErr)
			os.Exit(1)
		case job.Status == models.JobStatusCancelled:
			logger.Warnf("Audit cancelled after %d pages; partial results kept.", job.PagesCrawled)
		default:
			logger.Infof("Audit of %s completed: %d pages analyzed.", job.Domain, job.PagesCrawled)
		}
		return
	}

	results := svc.RunAll(ctx, domains, maxPages)

	hasFailure := false
	for _, r := range results {
		if r.Err != nil {
			hasFailure = true
			break
		}
	}
	if hasFailure {
		os.Exit(1)
	}
}

// runReport handles the report subcommand
func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (optional)")
	jobID := fs.String("job", "", "Job ID to regenerate the report for")
	outDir := fs.String("out", "", "Output directory (default: report_dir from config)")
	logLevel := fs.String("loglevel", "", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: siteaudit report [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  siteaudit report -job 6a1f0c9e-b9de-4d0a-9a55-2f1b3a6cd1e4\n")
		fmt.Fprintf(os.Stderr, "  siteaudit report -job <id> -out ./reports\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *jobID == "" {
		fmt.Fprintln(os.Stderr, "Error: -job is required")
		fs.Usage()
		os.Exit(1)
	}

	executeReport(*configFile, *jobID, *outDir, *logLevel)
}

func executeReport(configFile, jobID, outDir, logLevelStr string) {
	cfg, logger := setupApp(configFile, logLevelStr)

	dir := outDir
	if dir == "" {
		dir = cfg.ReportDir
	}

	store, err := storage.NewBadgerStore(context.Background(), cfg.StateDir, logger.WithField("component", "report"))
	if err != nil {
		logger.Fatalf("Failed to open result store: %v", err)
	}

	code := doReport(store, dir, jobID, os.Stdout, os.Stderr)
	store.Close()
	os.Exit(code)
}

// doReport regenerates the markdown report for a stored job from its
// persisted pages and recommendations. Returns exit code (0 = success,
// 1 = error).
func doReport(store storage.ResultStore, dir, jobID string, stdout, stderr io.Writer) int {
	job, err := store.GetJob(jobID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	records, err := store.ListPageRecords(jobID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	recs, err := store.ListRecommendations(jobID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	path, err := report.Write(dir, job, records, recs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: write report: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Report written to %s\n", path)
	return 0
}

// runListJobs handles the list-jobs subcommand
func runListJobs(args []string) {
	fs := flag.NewFlagSet("list-jobs", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (optional)")
	logLevel := fs.String("loglevel", "", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: siteaudit list-jobs [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	executeListJobs(*configFile, *logLevel)
}

func executeListJobs(configFile, logLevelStr string) {
	cfg, logger := setupApp(configFile, logLevelStr)

	store, err := storage.NewBadgerStore(context.Background(), cfg.StateDir, logger.WithField("component", "list-jobs"))
	if err != nil {
		logger.Fatalf("Failed to open result store: %v", err)
	}

	code := doListJobs(store, os.Stdout, os.Stderr)
	store.Close()
	os.Exit(code)
}

// doListJobs prints stored audit jobs, newest first, and writes output to
// the provided writers. Returns exit code (0 = success, 1 = error).
func doListJobs(store storage.ResultStore, stdout, stderr io.Writer) int {
	jobs, err := store.ListJobs()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(jobs) == 0 {
		fmt.Fprintln(stdout, "No audit jobs recorded.")
		return 0
	}

	fmt.Fprintf(stdout, "Audit jobs (newest first):\n\n")
	for _, job := range jobs {
		status := string(job.Status)
		if job.ErrorMessage != "" {
			status = fmt.Sprintf("%s (%s)", job.Status, job.ErrorMessage)
		}

		fmt.Fprintf(stdout, "  %s\n", job.ID)
		fmt.Fprintf(stdout, "    Domain: %s\n", job.Domain)
		fmt.Fprintf(stdout, "    Status: %s\n", status)
		fmt.Fprintf(stdout, "    Pages: %d of %d\n", job.PagesCrawled, job.PagesTotal)
		fmt.Fprintf(stdout, "    Started: %s\n", job.StartedAt.Format(timeLayout))
		if job.CompletedAt != nil {
			fmt.Fprintf(stdout, "    Finished: %s\n", job.CompletedAt.Format(timeLayout))
		}
		fmt.Fprintln(stdout)
	}
	return 0
}

// runWatch handles the watch subcommand
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (optional)")
	domain := fs.String("domain", "", "Domain to watch (single target)")
	domainList := fs.String("domains", "", "Comma-separated domains")
	allTargets := fs.Bool("all-targets", false, "Watch every domain in the config targets section")
	interval := fs.String("interval", "", "Re-audit interval, e.g. 30m, 12h, 7d (default: config)")
	logLevel := fs.String("loglevel", "", "Log level (debug, info, warn, error, fatal)")
	metricsAddr := fs.String("metrics", "", "Prometheus metrics address (overrides config)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: siteaudit watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  siteaudit watch -domain example.com -interval 12h\n")
		fmt.Fprintf(os.Stderr, "  siteaudit watch -domains example.com,blog.example.com -interval 24h\n")
		fmt.Fprintf(os.Stderr, "  siteaudit watch --all-targets -interval 7d\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	domains := splitDomains(*domain, *domainList)
	if !*allTargets && len(domains) == 0 {
		fmt.Fprintln(os.Stderr, "Error: one of -domain, -domains, or --all-targets is required")
		fs.Usage()
		os.Exit(1)
	}

	executeWatch(*configFile, domains, *allTargets, *interval, *logLevel, *metricsAddr)
}

// executeWatch runs the re-audit scheduler until interrupted.
func executeWatch(configFile string, domains []string, allTargets bool, intervalStr, logLevelStr, metricsAddr string) {
	cfg, logger := setupApp(configFile, logLevelStr)

	interval := cfg.Watch.Interval
	if intervalStr != "" {
		parsed, err := watch.ParseInterval(intervalStr)
		if err != nil {
			logger.Fatalf("Invalid interval: %v", err)
		}
		interval = parsed
	}
	logger.Infof("Watch interval: %s", watch.FormatInterval(interval))

	if allTargets {
		domains = targetKeys(cfg)
		if len(domains) == 0 {
			logger.Fatal("No targets configured; --all-targets needs a targets section in the config")
		}
		logger.Infof("All targets mode: found %d configured targets", len(domains))
	}

	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}
	startMetrics(metricsAddr, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := trapSignals(cancel, logger)
	defer stop()

	store, svc := newAuditService(ctx, cfg, logger)
	defer store.Close()

	scheduler := watch.NewScheduler(svc, domains, interval, cfg.Watch.StateFile, logrus.NewEntry(logger))
	if err := scheduler.Run(ctx); err != nil {
		logger.Fatalf("Watch scheduler error: %v", err)
	}

	logger.Info("Watch mode stopped")
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: siteaudit validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := cfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	hasError := false
	for _, key := range targetKeys(cfg) {
		normalized, err := models.NormalizeDomain(key)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
			hasError = true
			continue
		}
		if normalized != key {
			fmt.Fprintf(stdout, "WARN: [%s] target key is not a bare domain, use '%s'\n", key, normalized)
		}
		fmt.Fprintf(stdout, "OK: [%s] max pages %d, min delay %v\n",
			key, config.GetEffectiveMaxPages(cfg.Targets[key], *cfg), config.GetEffectiveMinDelay(cfg.Targets[key], *cfg))
	}
	if hasError {
		return 1
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// setupApp loads the configuration, applies defaults, and builds the
// application logger. The -loglevel flag overrides the configured level.
func setupApp(configFile, logLevelStr string) (*config.AppConfig, *logrus.Logger) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	warnings, err := cfg.Validate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if logLevelStr != "" {
		cfg.Log.Level = logLevelStr
	}
	logger := log.New(cfg.Log)

	if configFile != "" {
		logger.Infof("Loaded configuration from %s", configFile)
	} else {
		logger.Info("No config file given, using built-in defaults")
	}
	for _, w := range warnings {
		// Without a config file every default fires; not worth warning about.
		if configFile == "" {
			logger.Debug(w)
		} else {
			logger.Warn(w)
		}
	}

	return cfg, logger
}

// splitDomains merges the -domain and -domains flags into one list. The
// comma-separated form wins when both are set.
func splitDomains(domain, domainList string) []string {
	var out []string
	if domainList != "" {
		for _, d := range strings.Split(domainList, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				out = append(out, d)
			}
		}
	} else if domain != "" {
		out = []string{domain}
	}
	return out
}

// targetKeys returns the configured target domains in sorted order.
func targetKeys(cfg *config.AppConfig) []string {
	keys := make([]string, 0, len(cfg.Targets))
	for d := range cfg.Targets {
		keys = append(keys, d)
	}
	sort.Strings(keys)
	return keys
}

// startPprof starts the pprof HTTP server if addr is non-empty.
func startPprof(addr string, logger *logrus.Logger) {
	if addr == "" {
		return
	}
	runtime.SetBlockProfileRate(1000)
	runtime.SetMutexProfileFraction(1000)
	go func() {
		logger.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Errorf("pprof server error: %v", err)
		}
	}()
}

// startMetrics exposes the Prometheus endpoint if an address is configured.
func startMetrics(addr string, logger *logrus.Logger) {
	if addr == "" {
		return
	}
	go metrics.Expose(addr, logger.WithField("component", "metrics"))
}

// trapSignals cancels the context on the first SIGINT/SIGTERM and forces
// exit on a second signal or after a 30 second grace period. The returned
// function stops signal delivery.
func trapSignals(cancel context.CancelFunc, logger *logrus.Logger) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		sig := <-sigChan
		logger.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			logger.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return func() { signal.Stop(sigChan) }
}

// newAuditService opens the result store and builds the audit service on it.
func newAuditService(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) (*storage.BadgerStore, *audit.Service) {
	logEntry := logger.WithField("component", "audit")
	store, err := storage.NewBadgerStore(ctx, cfg.StateDir, logEntry)
	if err != nil {
		logger.Fatalf("Failed to initialize result store: %v", err)
	}
	return store, audit.NewService(cfg, store, logEntry)
}

// logAppConfig logs the effective global configuration
func logAppConfig(cfg *config.AppConfig, logger *logrus.Logger) {
	logger.Infof("Global Config: MaxPages:%d, MinDelay:%v, FetchTimeout:%v, MaxConcurrentAudits:%d",
		cfg.MaxPages, cfg.MinRequestDelay, cfg.FetchTimeout, cfg.MaxConcurrentAudits)
	logger.Infof("Global Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		cfg.MaxRetries, cfg.InitialRetryDelay, cfg.MaxRetryDelay)
	logger.Infof("Global Config Dirs: State:%s, Reports:%s", cfg.StateDir, cfg.ReportDir)
	logger.Infof("Global Config Timeouts: GlobalAudit:%v, HTTPClient:%v",
		cfg.GlobalAuditTimeout, cfg.HTTPClientSettings.Timeout)
}
