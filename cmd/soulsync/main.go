// Package main is the SoulSync CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/soulsync/internal/cli"
	"github.com/hyperjump/soulsync/internal/config"
	"github.com/hyperjump/soulsync/internal/embedding"
	"github.com/hyperjump/soulsync/internal/journey"
	"github.com/hyperjump/soulsync/internal/metrics"
	"github.com/hyperjump/soulsync/internal/models"
	"github.com/hyperjump/soulsync/internal/profile"
	"github.com/hyperjump/soulsync/internal/server"
	"github.com/hyperjump/soulsync/internal/storage"
	"github.com/hyperjump/soulsync/internal/vector"
	"github.com/hyperjump/soulsync/internal/watcher"
	"github.com/hyperjump/soulsync/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/soulsync/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "register":
		runRegister()
	case "verify":
		runUserUpdate("verify")
	case "deactivate":
		runUserUpdate("deactivate")
	case "looking":
		runLooking()
	case "answer":
		runAnswer()
	case "embed":
		runEmbed()
	case "match":
		runMatch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("soulsync version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		exitf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(components.Service, cfg, components.Metrics, logger)

	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	configWatcher := watcher.NewWatcher(
		[]string{resolvedConfigPath},
		func(path string) {
			reloaded, err := config.Load(path)
			if err != nil {
				logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
				return
			}
			if err := applyMatchingConfig(components.Service, reloaded.Matching); err != nil {
				logger.Warn("config reload rejected", zap.String("path", path), zap.Error(err))
				return
			}
			srv.UpdateConfig(reloaded)
			logger.Info("matching config reloaded",
				zap.Int("min_answers", reloaded.Matching.MinAnswers),
				zap.String("recompute", reloaded.Matching.Recompute),
				zap.Int("default_limit", reloaded.Matching.DefaultLimit),
				zap.Int("max_limit", reloaded.Matching.MaxLimit),
			)
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := configWatcher.Start(watchCtx); err != nil {
		logger.Warn("config watcher not started", zap.Error(err))
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// applyMatchingConfig swaps the re-embedding policy, candidate limits and query timeout of a
// running service.
// Storage, vector store and embedding settings need a restart.
func applyMatchingConfig(svc *journey.Service, mc config.MatchingConfig) error {
	policy := profile.PolicyFromConfig(mc)
	if err := policy.Validate(); err != nil {
		return err
	}
	svc.SetPolicy(policy)
	svc.SetLimits(journey.Limits{Default: mc.DefaultLimit, Max: mc.MaxLimit})
	if mc.QueryTimeout > 0 {
		svc.SetQueryTimeout(mc.QueryTimeout)
	}
	return nil
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args with spaces so multi-word values work with or without quotes.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// openComponents loads config and initializes components for a direct-storage command.
func openComponents(configPath string) (*Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		exitf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		exitf("Failed to initialize: %v", err)
	}
	return components, logger
}

func parseOutput(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		exitf("%v", err)
	}
	return format
}

func runRegister() {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	verify := fs.Bool("verify", false, "mark the email as verified right away")
	outputFormat := fs.String("output", "text", "output format: text, compact (ID only) or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	name := joinArgs(fs.Args())
	if name == "" {
		exitf("Usage: soulsync register [flags] <display name>")
	}
	format := parseOutput(*outputFormat)

	components, logger := openComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	user, err := components.Service.RegisterUser(ctx, name)
	if err != nil {
		exitf("Register failed: %v", err)
	}
	if *verify {
		if user, err = components.Service.VerifyUser(ctx, user.ID); err != nil {
			exitf("Verify failed: %v", err)
		}
	}
	if err := cli.WriteUser(os.Stdout, &models.UserSummary{User: user}, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func runUserUpdate(action string) {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		exitf("Usage: soulsync %s [flags] <user-id>", action)
	}
	id := fs.Arg(0)

	components, logger := openComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	var err error
	switch action {
	case "verify":
		_, err = components.Service.VerifyUser(context.Background(), id)
	case "deactivate":
		_, err = components.Service.DeactivateUser(context.Background(), id)
	}
	if err != nil {
		exitf("%s failed: %v", action, err)
	}
	fmt.Printf("User %s: %s done\n", id, action)
}

func runLooking() {
	fs := flag.NewFlagSet("looking", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	userID := fs.String("user", "", "user ID")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	text := joinArgs(fs.Args())
	if *userID == "" || text == "" {
		exitf("Usage: soulsync looking --user <id> <what you are looking for>")
	}

	components, logger := openComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	if err := components.Service.SetLookingFor(context.Background(), *userID, text); err != nil {
		exitf("Update failed: %v", err)
	}
	fmt.Printf("Looking-for text updated for %s\n", *userID)
}

func runAnswer() {
	fs := flag.NewFlagSet("answer", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	userID := fs.String("user", "", "user ID")
	questionID := fs.String("question-id", "", "journey question ID")
	question := fs.String("question", "", "question text")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	input := &models.AnswerInput{
		UserID:        *userID,
		QuestionID:    *questionID,
		QuestionText:  *question,
		AnswerSummary: joinArgs(fs.Args()),
	}
	if err := input.Validate(); err != nil {
		exitf("%v\nUsage: soulsync answer --user <id> --question-id <qid> --question <text> <answer summary>", err)
	}

	components, logger := openComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	answer, err := components.Service.SubmitAnswer(ctx, input)
	if err != nil {
		exitf("Answer failed: %v", err)
	}
	components.Service.Wait()
	count, _ := components.Service.AnswerCount(ctx, input.UserID)
	ready, _ := components.Service.ProfileReady(ctx, input.UserID)
	fmt.Printf("Answer %d recorded for %s (answers: %d, profile ready: %t)\n", answer.ID, input.UserID, count, ready)
}

func runEmbed() {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	userID := fs.String("user", "", "user ID")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if *userID == "" && fs.NArg() > 0 {
		*userID = fs.Arg(0)
	}
	if *userID == "" {
		exitf("Usage: soulsync embed --user <id>")
	}

	components, logger := openComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	updated, err := components.Service.RefreshProfile(context.Background(), *userID)
	if err != nil {
		exitf("Embedding failed: %v", err)
	}
	if !updated {
		fmt.Printf("Profile of %s not embedded: not enough journey answers yet\n", *userID)
		return
	}
	fmt.Printf("Profile of %s embedded\n", *userID)
}

func runMatch() {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	userID := fs.String("user", "", "user ID")
	limit := fs.Int("limit", 0, "number of candidates (0 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text, compact (one candidate per line) or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if *userID == "" && fs.NArg() > 0 {
		*userID = fs.Arg(0)
	}
	if *userID == "" {
		exitf("Usage: soulsync match --user <id> [--limit N] [--output text|compact|json] [--server URL]")
	}
	format := parseOutput(*outputFormat)

	var response *models.MatchResponse
	if *serverURL != "" {
		res, err := matchViaHTTP(*serverURL, *userID, *limit)
		if err != nil {
			exitf("Match failed: %v", err)
		}
		response = res
	} else {
		components, logger := openComponents(*configPath)
		defer logger.Sync()
		defer components.Close()

		start := time.Now()
		matches, err := components.Service.RequestMatches(context.Background(), *userID, *limit)
		if err != nil {
			exitf("Match failed: %v", err)
		}
		response = &models.MatchResponse{
			OK:        true,
			UserID:    *userID,
			Matches:   matches,
			QueryTime: time.Since(start).Milliseconds(),
		}
	}
	if err := cli.WriteMatches(os.Stdout, response, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func matchViaHTTP(serverURL, userID string, limit int) (*models.MatchResponse, error) {
	u := strings.TrimRight(serverURL, "/") + "/api/v1/users/" + url.PathEscape(userID) + "/matches"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	resp, err := http.Get(u)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var response models.MatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func httpError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Stats          journey.Stats          `json:"stats"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status *statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			exitf("Status failed: %v", err)
		}
		status = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			exitf("Failed to load config: %v", err)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			exitf("Failed to create logger: %v", err)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			exitf("Failed to initialize: %v", err)
		}
		defer components.Close()
		if status, err = localStatus(context.Background(), components, cfg); err != nil {
			exitf("Status failed: %v", err)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			exitf("Output failed: %v", err)
		}
	case "text":
		writeStatusText(os.Stdout, status)
	default:
		exitf("Unknown output format %q; use text or json", *outputFormat)
	}
}

func localStatus(ctx context.Context, c *Components, cfg *config.Config) (*statusResponse, error) {
	stats, err := c.Service.Stats(ctx)
	if err != nil {
		return nil, err
	}
	policy := c.Service.Policy()
	limits := c.Service.Limits()
	status := &statusResponse{
		Stats: *stats,
		Config: map[string]interface{}{
			"min_answers":        policy.MinAnswers,
			"recompute":          policy.Recompute,
			"default_limit":      limits.Default,
			"max_limit":          limits.Max,
			"storage_driver":     cfg.Storage.Driver,
			"embedding_provider": cfg.Embedding.Provider,
			"embedding_model":    cfg.Embedding.Model,
		},
	}
	if cfg.Storage.Driver == config.DriverSQLite {
		status.Config["database_path"] = cfg.Storage.DatabasePath
		if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.VectorIndexPath); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}
	return status, nil
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "users:              %d\n", status.Stats.Users)
	fmt.Fprintf(w, "eligible_users:     %d   # active and verified\n", status.Stats.EligibleUsers)
	fmt.Fprintf(w, "answers:            %d   # journey ledger entries\n", status.Stats.Answers)
	fmt.Fprintf(w, "embeddings:         %d   # profiles ready for matching\n", status.Stats.Embeddings)
	fmt.Fprintf(w, "vector_store:       %s\n", status.Stats.VectorStore)
	fmt.Fprintf(w, "embedding_dims:     %d\n", status.Stats.Dimensions)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
	}
	if len(status.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		for _, key := range []string{"storage_driver", "database_path", "embedding_provider", "embedding_model", "min_answers", "recompute", "default_limit", "max_limit"} {
			if v, ok := status.Config[key]; ok {
				fmt.Fprintf(w, "%-19s %v\n", key+":", v)
			}
		}
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Vectors  vector.Store
	Embedder embedding.Embedder
	Metrics  *metrics.Metrics
	Service  *journey.Service

	snapshotPath string
	logger       *zap.Logger
}

// Close drains background refreshes, saves the memory vector snapshot and closes resources.
func (c *Components) Close() {
	if c.Service != nil {
		c.Service.Wait()
	}
	if mem, ok := c.Vectors.(*vector.MemoryStore); ok && c.snapshotPath != "" {
		if err := mem.Save(c.snapshotPath); err != nil && c.logger != nil {
			c.logger.Warn("vector snapshot save failed", zap.String("path", c.snapshotPath), zap.Error(err))
		}
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	source := cfg.Storage.DatabasePath
	if cfg.Storage.Driver == config.DriverPostgres {
		source = cfg.Storage.DSN
	}
	store, err := storage.New(cfg.Storage.Driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store, logger: logger}

	vs, err := vector.NewStore(cfg.Storage.VectorStore, cfg.Embedding.Dimensions, store)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	c.Vectors = vs
	if mem, ok := vs.(*vector.MemoryStore); ok && cfg.Storage.VectorIndexPath != "" {
		if err := mem.Load(cfg.Storage.VectorIndexPath); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to load vector snapshot: %w", err)
		}
		c.snapshotPath = cfg.Storage.VectorIndexPath
	}
	logger.Info("vector store initialized",
		zap.String("type", vs.Type()),
		zap.Int("dimensions", vs.Dimensions()))

	opts := embedding.Options{
		Provider:          cfg.Embedding.Provider,
		Model:             cfg.Embedding.Model,
		APIKey:            cfg.Embedding.APIKey,
		BaseURL:           cfg.Embedding.BaseURL,
		Dimensions:        cfg.Embedding.Dimensions,
		ModelPath:         cfg.Embedding.ModelPath,
		MaxTokens:         cfg.Embedding.MaxTokens,
		CacheSize:         cfg.Embedding.CacheSize,
		Timeout:           cfg.Embedding.Timeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Burst,
	}
	emb, err := embedding.New(opts, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = emb

	c.Metrics = metrics.New()
	c.Service = journey.NewService(store, vs, emb, profile.PolicyFromConfig(cfg.Matching),
		journey.WithLogger(logger),
		journey.WithMetrics(c.Metrics),
		journey.WithLimits(journey.Limits{Default: cfg.Matching.DefaultLimit, Max: cfg.Matching.MaxLimit}),
		journey.WithEmbedTimeout(cfg.Embedding.Timeout+cfg.Matching.QueryTimeout),
		journey.WithQueryTimeout(cfg.Matching.QueryTimeout),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`soulsync - Journey-based match engine

Usage:
  soulsync server [flags]                  Start the HTTP server
  soulsync register [flags] <name>         Register a user
  soulsync verify [flags] <user-id>        Mark a user's email as verified
  soulsync deactivate [flags] <user-id>    Remove a user from matching
  soulsync looking --user <id> <text>      Set what a user is looking for
  soulsync answer [flags] <summary>        Record a journey answer
  soulsync embed --user <id>               Recompute a user's profile embedding now
  soulsync match --user <id> [flags]       List match candidates
  soulsync status [flags]                  Show user/answer/embedding counts
  soulsync version                         Show version
  soulsync help                            Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/soulsync/config.yaml, or ./config.yaml when present)

Server Flags:
  --debug            Enable debug logging

Register Flags:
  --verify           Mark the email as verified right away
  --output string    Output format: text, compact or json (default: text)

Answer Flags:
  --user string          User ID
  --question-id string   Journey question ID
  --question string      Question text

Match Flags:
  --user string      User ID
  --limit int        Number of candidates (default: configured default_limit, capped at max_limit)
  --output string    Output format: text, compact or json (default: text)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.

Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --output string    Output format: text or json (default: text)

Examples:
  soulsync server
  soulsync register --verify "Alice"
  soulsync looking --user 1b9d... someone who loves long hikes
  soulsync answer --user 1b9d... --question-id q1 --question "Ideal weekend?" hiking and cooking
  soulsync match --user 1b9d... --limit 5
  soulsync match --user 1b9d... --output json --server ""
  soulsync status --output json`)
}
