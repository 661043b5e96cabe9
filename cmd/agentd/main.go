// Command agentd wires every pipeline component behind a single
// agi.Facade and serves a line-oriented REPL over stdin: each line is a
// goal, each reply is printed to stdout. It is the thin composition
// root the rest of the module is designed to be driven by; it contains
// no pipeline logic of its own.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"

	"github.com/kanephamphu/connex-agi/agi"
	"github.com/kanephamphu/connex-agi/config"
	"github.com/kanephamphu/connex-agi/corrector"
	"github.com/kanephamphu/connex-agi/memory"
	"github.com/kanephamphu/connex-agi/model"
	mAnthropic "github.com/kanephamphu/connex-agi/model/anthropic"
	mBedrock "github.com/kanephamphu/connex-agi/model/bedrock"
	mOpenAI "github.com/kanephamphu/connex-agi/model/openai"
	"github.com/kanephamphu/connex-agi/model/ratelimit"
	"github.com/kanephamphu/connex-agi/orchestrator"
	"github.com/kanephamphu/connex-agi/perception"
	"github.com/kanephamphu/connex-agi/planner"
	"github.com/kanephamphu/connex-agi/reflex"
	"github.com/kanephamphu/connex-agi/sensors"
	"github.com/kanephamphu/connex-agi/skills"
	"github.com/kanephamphu/connex-agi/store/sqlite"
	"github.com/kanephamphu/connex-agi/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agentd:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbPath := envOr("AGENTD_DB_PATH", "agentd.db")
	skillsDir := envOr("AGENTD_SKILLS_DIR", "skills/data")
	scheduleFile := envOr("AGENTD_SCHEDULE_FILE", "schedule.json")

	db, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	obs := telemetry.New(newSlogLogger(), nil, nil)

	router, err := buildRouter(ctx)
	if err != nil {
		return fmt.Errorf("build model router: %w", err)
	}

	cfgStore := config.New(db)
	shortTerm := memory.NewShortTerm(20, routerSummarizer{router})

	registry := skills.New(db, router, skillsDir, obs)
	registry.SetRequestLogger(cfgStore)
	speaking := &sensors.Speaking{}
	if err := registry.Register(ctx, skills.NewGeneralChat(router)); err != nil {
		return fmt.Errorf("register general_chat: %w", err)
	}
	if err := registry.Register(ctx, skills.NewSpeak(noopSynthesizer{}, speaking)); err != nil {
		return fmt.Errorf("register speak: %w", err)
	}
	if err := registry.LoadDirectory(ctx, skillsDir); err != nil && !os.IsNotExist(unwrapPathErr(err)) {
		slog.Warn("skills: load directory failed", "dir", skillsDir, "error", err)
	}

	percep := perception.New(db, router, obs)
	registerPerceptionModules(ctx, percep, router)

	reflexLayer := reflex.New(obs)
	registerReflexModules(reflexLayer)

	plan, err := planner.New(router, percep, obs)
	if err != nil {
		return fmt.Errorf("build planner: %w", err)
	}
	correct := corrector.New(router)
	orch := orchestrator.New(registry, correct, plan, orchestrator.Config{SelfCorrectionEnabled: true}, obs)

	facade := agi.New(router, cfgStore, registry, percep, reflexLayer, plan, orch, shortTerm, obs)

	timeSensor := sensors.NewTime(scheduleFile, facade.InjectEvent)
	timeSensor.Start(ctx)
	defer timeSensor.Stop()

	reviewer := skills.NewReviewer(registry, cfgStore, skills.NewRegistryClient(os.Getenv("AGENTD_SKILL_REGISTRY_URL")), router, skills.DefaultReviewerConfig(), obs)
	go reviewer.Start(ctx)

	if hostPort := os.Getenv("AGENTD_TEMPORAL_HOST_PORT"); hostPort != "" {
		go func() {
			if err := runDurableWorker(ctx, orch, hostPort); err != nil {
				slog.Error("durable worker stopped", "error", err)
			}
		}()
	}

	go facade.RunLoop(ctx)

	return repl(ctx, facade)
}

// repl reads one goal per line from stdin and prints the facade's
// reply, until EOF or ctx is cancelled.
func repl(ctx context.Context, facade *agi.Facade) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("connex-agi ready. Type a goal and press enter.")
	for scanner.Scan() {
		goal := scanner.Text()
		if goal == "" {
			continue
		}
		result, err := facade.Execute(ctx, goal, nil, false)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Println(result.Result)
	}
	return scanner.Err()
}

// routerSummarizer adapts *model.Router's class-dispatched Chat down to
// the class-free shape memory.Summarizer expects, fixing the task
// class at FAST since summarization and embedding are both cheap,
// latency-sensitive background operations.
type routerSummarizer struct{ router *model.Router }

func (r routerSummarizer) Chat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int) (string, error) {
	return r.router.Chat(ctx, model.TaskFast, messages, temperature, maxTokens)
}

func (r routerSummarizer) Embed(ctx context.Context, text string) ([]float32, error) {
	return r.router.Embed(ctx, text)
}

func buildRouter(ctx context.Context) (*model.Router, error) {
	var anthropicClient, bedrockClient, openaiClient model.Client

	rdb := buildRedisClient()

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c, err := mAnthropic.NewFromAPIKey(key, envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"))
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		anthropicClient = wrapLimited(rdb, "anthropic", c)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c, err := mOpenAI.NewFromAPIKey(key, envOr("OPENAI_CHAT_MODEL", "gpt-4o-mini"), envOr("OPENAI_EMBED_MODEL", "text-embedding-3-small"))
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		openaiClient = wrapLimited(rdb, "openai", c)
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		c, err := mBedrock.New(bedrockruntime.NewFromConfig(awsCfg), envOr("BEDROCK_MODEL", "anthropic.claude-3-5-sonnet-20241022-v2:0"))
		if err != nil {
			return nil, fmt.Errorf("bedrock: %w", err)
		}
		bedrockClient = wrapLimited(rdb, "bedrock", c)
	}

	return model.NewRouter(model.DefaultTable(anthropicClient, bedrockClient, openaiClient)), nil
}

// buildRedisClient returns a Redis client for cluster-wide rate-limit
// budget sync, or nil if AGENTD_REDIS_ADDR is unset — every provider's
// Limiter then degrades to a process-local budget.
func buildRedisClient() *redis.Client {
	addr := os.Getenv("AGENTD_REDIS_ADDR")
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}

// wrapLimited wraps a provider client in an adaptive per-provider rate
// limiter (spec §4.1), keyed on the provider's name so a shared rdb
// tracks each provider's budget independently.
func wrapLimited(rdb *redis.Client, name string, c model.Client) model.Client {
	tpm, _ := strconv.ParseFloat(os.Getenv("AGENTD_"+strings.ToUpper(name)+"_TPM"), 64)
	limiter := ratelimit.New(rdb, "agentd:ratelimit:"+name, tpm, 0)
	return limiter.Wrap(c)
}

func registerPerceptionModules(ctx context.Context, percep *perception.Layer, router *model.Router) {
	modules := []perception.Module{
		perception.NewSystemMonitor(),
		perception.NewTimeSense(),
		perception.NewWorkload(),
		perception.NewEmotion(router),
	}
	if lat, lon, ok := weatherCoords(); ok {
		modules = append(modules, perception.NewWeather(lat, lon))
	}
	for _, m := range modules {
		if err := percep.Register(ctx, m); err != nil {
			slog.Warn("perception: register failed", "module", m.Metadata().Name, "error", err)
		}
	}
}

func registerReflexModules(layer *reflex.Layer) {
	modules := []reflex.Module{
		reflex.NewSafety(),
		reflex.NewGovernor(),
		reflex.NewScheduler(),
		reflex.NewAutoRecovery(),
		reflex.NewWeatherAlert(),
		reflex.NewSmartClipboard(),
		reflex.NewVoiceCommand(),
		reflex.NewSelfRepair(nil, 3),
	}
	for _, m := range modules {
		if err := layer.Register(m); err != nil {
			slog.Warn("reflex: register failed", "module", m.Metadata().Name, "error", err)
		}
	}
}

func weatherCoords() (lat, lon float64, ok bool) {
	latStr, lonStr := os.Getenv("AGENTD_WEATHER_LAT"), os.Getenv("AGENTD_WEATHER_LON")
	if latStr == "" || lonStr == "" {
		return 0, 0, false
	}
	latF, errLat := strconv.ParseFloat(latStr, 64)
	lonF, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil {
		return 0, 0, false
	}
	return latF, lonF, true
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func unwrapPathErr(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe
	}
	return err
}

// noopSynthesizer is the demo TTS backend: no speech library appears
// anywhere in the example pack, so production wiring is expected to
// supply its own skills.Synthesizer.
type noopSynthesizer struct{}

func (noopSynthesizer) Synthesize(ctx context.Context, text, lang string) error {
	fmt.Printf("[speak:%s] %s\n", lang, text)
	return nil
}

// slogLogger adapts log/slog to telemetry.Logger. No structured logging
// library is exercised anywhere in the retrieved pack's actually-wired
// code, so this one ambient concern is carried on the standard library
// per the documented justification in DESIGN.md.
type slogLogger struct{ logger *slog.Logger }

func newSlogLogger() *slogLogger {
	return &slogLogger{logger: slog.New(slog.NewJSONHandler(os.Stderr, nil))}
}

func (l *slogLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	l.logger.DebugContext(ctx, msg, keyvals...)
}
func (l *slogLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.logger.InfoContext(ctx, msg, keyvals...)
}
func (l *slogLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.logger.WarnContext(ctx, msg, keyvals...)
}
func (l *slogLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.logger.ErrorContext(ctx, msg, keyvals...)
}
