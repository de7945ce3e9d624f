package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kovalyov-valentin/competitor-scout/internal/bot"
	"github.com/kovalyov-valentin/competitor-scout/internal/bot/middleware"
	"github.com/kovalyov-valentin/competitor-scout/internal/botkit"
	"github.com/kovalyov-valentin/competitor-scout/internal/classifier"
	"github.com/kovalyov-valentin/competitor-scout/internal/config"
	"github.com/kovalyov-valentin/competitor-scout/internal/fetcher"
	"github.com/kovalyov-valentin/competitor-scout/internal/model"
	"github.com/kovalyov-valentin/competitor-scout/internal/notifier"
	"github.com/kovalyov-valentin/competitor-scout/internal/pipeline"
	"github.com/kovalyov-valentin/competitor-scout/internal/ratelimit"
	"github.com/kovalyov-valentin/competitor-scout/internal/report"
	"github.com/kovalyov-valentin/competitor-scout/internal/server"
	"github.com/kovalyov-valentin/competitor-scout/internal/source"
	"github.com/kovalyov-valentin/competitor-scout/internal/storage"
)

const usage = `usage: scout <command> [flags]

commands:
  init                      create tables and register the roster
  reset -force              drop all data and recreate tables
  ingest [-set name]        fetch new articles
  classify [-set name] [-max n]
                            classify new articles
  run [-set name]           ingest and classify
  serve [-readonly]         http dashboard, periodic pipeline, notifier and bot
  report -set name -out file.pdf
                            write a pdf briefing
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Graceful Shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1], os.Args[2:])
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[ERROR] %s: %v", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "init":
		return withApp(ctx, cmdInit)
	case "reset":
		fs := flag.NewFlagSet("reset", flag.ExitOnError)
		force := fs.Bool("force", false, "confirm that all data will be deleted")
		fs.Parse(args)

		if !*force {
			return errors.New("reset deletes all data, pass -force to confirm")
		}
		return withApp(ctx, cmdReset)
	case "ingest":
		fs := flag.NewFlagSet("ingest", flag.ExitOnError)
		setName := fs.String("set", "", "competitor set, all sets when empty")
		fs.Parse(args)

		return withApp(ctx, func(ctx context.Context, a *app) error {
			return cmdIngest(ctx, a, *setName)
		})
	case "classify":
		fs := flag.NewFlagSet("classify", flag.ExitOnError)
		setName := fs.String("set", "", "competitor set, all sets when empty")
		maxArticles := fs.Int("max", 0, "classify at most n articles, 0 means classify_limit")
		fs.Parse(args)

		return withApp(ctx, func(ctx context.Context, a *app) error {
			return cmdClassify(ctx, a, *setName, *maxArticles)
		})
	case "run":
		fs := flag.NewFlagSet("run", flag.ExitOnError)
		setName := fs.String("set", "", "competitor set, all sets when empty")
		fs.Parse(args)

		return withApp(ctx, func(ctx context.Context, a *app) error {
			return cmdRun(ctx, a, *setName)
		})
	case "serve":
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		readonly := fs.Bool("readonly", false, "only serve the dashboard, no background workers")
		fs.Parse(args)

		return withApp(ctx, func(ctx context.Context, a *app) error {
			return cmdServe(ctx, a, *readonly)
		})
	case "report":
		fs := flag.NewFlagSet("report", flag.ExitOnError)
		setName := fs.String("set", "", "competitor set")
		out := fs.String("out", "briefing.pdf", "output file")
		fs.Parse(args)

		if *setName == "" {
			return errors.New("-set is required")
		}
		return withApp(ctx, func(ctx context.Context, a *app) error {
			return cmdReport(ctx, a, *setName, *out)
		})
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdInit(ctx context.Context, a *app) error {
	if err := storage.Migrate(ctx, a.db); err != nil {
		return err
	}

	return a.pipeline(nil).Seed(ctx, a.roster)
}

func cmdReset(ctx context.Context, a *app) error {
	if err := storage.Reset(ctx, a.db); err != nil {
		return err
	}

	log.Println("[WARN] all data deleted, run `scout init` to register the roster again")
	return nil
}

func cmdIngest(ctx context.Context, a *app, setName string) error {
	f := a.fetcher()

	if setName != "" {
		rep, err := f.IngestSet(ctx, setName)
		if err != nil {
			return err
		}
		return printJSON(rep)
	}

	reports, err := f.IngestAll(ctx)
	if err != nil {
		return err
	}
	return printJSON(reports)
}

func cmdClassify(ctx context.Context, a *app, setName string, maxArticles int) error {
	batch, err := a.batch()
	if err != nil {
		return err
	}

	rep, err := batch.ClassifySet(ctx, setName, maxArticles)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func cmdRun(ctx context.Context, a *app, setName string) error {
	batch, err := a.batch()
	if err != nil {
		return err
	}

	p := a.pipeline(batch)

	if setName != "" {
		rep, err := p.RunSet(ctx, setName)
		if err != nil {
			return err
		}
		return printJSON(rep)
	}

	reports, err := p.RunAll(ctx)
	if err != nil {
		return err
	}
	return printJSON(reports)
}

func cmdReport(ctx context.Context, a *app, setName, out string) error {
	stats, err := a.events.StatsBySet(ctx, setName)
	if err != nil {
		return err
	}

	unclassified, err := a.articles.CountUnclassified(ctx, setName)
	if err != nil {
		return err
	}

	events, err := a.events.BySet(ctx, setName, 0)
	if err != nil {
		return err
	}

	file, err := os.Create(out)
	if err != nil {
		return err
	}
	defer file.Close()

	err = report.WritePDF(file, report.Briefing{
		SetName:      setName,
		GeneratedAt:  time.Now().UTC(),
		Stats:        stats,
		Unclassified: unclassified,
		Events:       events,
	})
	if err != nil {
		return err
	}

	log.Printf("[INFO] briefing for %q with %d events written to %s", setName, len(events), out)
	return file.Close()
}

func cmdServe(ctx context.Context, a *app, readonly bool) error {
	srv := server.New(a.competitors, a.events, a.articles, a.cfg.FeedLink)

	if !readonly {
		a.startWorkers(ctx)
	}

	return srv.Start(ctx, a.cfg.HTTPAddr)
}

// startWorkers запускает периодический прогон, notifier и бота. Каждый живет в своей горутине до отмены ctx.
func (a *app) startWorkers(ctx context.Context) {
	batch, err := a.batch()
	if err != nil {
		// Без ключа продолжаем собирать статьи, классифицировать будет нечем
		log.Printf("[WARN] classification disabled: %v", err)
		batch = nil
	}
	p := a.pipeline(batch)

	// Воркер pipeline
	go func(ctx context.Context) {
		if err := p.Start(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("[ERROR] failed to start pipeline: %v", err)
				return
			}

			log.Println("pipeline stopped")
		}
	}(ctx)

	if a.cfg.TelegramBotToken == "" {
		log.Println("[INFO] telegram token is not set, notifier and bot are disabled")
		return
	}

	botAPI, err := tgbotapi.NewBotAPI(a.cfg.TelegramBotToken)
	if err != nil {
		log.Printf("[ERROR] failed to create bot: %v", err)
		return
	}

	if a.cfg.TelegramChannelID != 0 {
		n := notifier.New(
			a.events,
			botAPI,
			a.cfg.NotificationInterval,
			// На старте заглядываем назад на один интервал сбора
			a.cfg.FetchInterval,
			a.cfg.TelegramChannelID,
			model.ImpactLevel(a.cfg.NotifyMinImpact),
		)

		// Воркер notifier
		go func(ctx context.Context) {
			if err := n.Start(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Printf("[ERROR] failed to start notifier: %v", err)
					return
				}

				log.Println("notifier stopped")
			}
		}(ctx)
	}

	scoutBot := botkit.New(botAPI)
	scoutBot.RegisterCmdView("start", bot.ViewCmdStart())
	scoutBot.RegisterCmdView("listsources", bot.ViewCmdListSources(a.sources))
	scoutBot.RegisterCmdView("stats", bot.ViewCmdStats(a.competitors, a.events, a.articles))
	scoutBot.RegisterCmdView("events", bot.ViewCmdEvents(a.competitors, a.events))
	scoutBot.RegisterCmdView(
		"addsource",
		middleware.AdminOnly(
			a.cfg.TelegramChannelID,
			bot.ViewCmdAddSource(a.competitors, a.sources),
		),
	)

	// Воркер бота
	go func(ctx context.Context) {
		if err := scoutBot.Run(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("[ERROR] failed to start bot: %v", err)
				return
			}

			log.Println("bot stopped")
		}
	}(ctx)
}

// Зависимости, общие для всех команд
type app struct {
	cfg    config.Config
	roster config.Roster
	db     *sqlx.DB

	competitors *storage.CompetitorPostgresStorage
	sources     *storage.SourcePostgresStorage
	articles    *storage.ArticlePostgresStorage
	events      *storage.EventPostgresStorage
}

func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg := config.Get()

	roster, err := config.LoadRoster(cfg.RosterPath)
	if err != nil {
		return err
	}

	// Инициализируем подключение к БД
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	a := &app{
		cfg:         cfg,
		roster:      roster,
		db:          db,
		competitors: storage.NewCompetitorPostgresStorage(db),
		sources:     storage.NewSourcePostgresStorage(db),
		articles:    storage.NewArticleStorage(db),
		events:      storage.NewEventStorage(db),
	}

	return fn(ctx, a)
}

func (a *app) fetcher() *fetcher.Fetcher {
	// Один лимитер и на первую попытку в сборщике, и на повторы в загрузчике
	limiter := ratelimit.NewDomainLimiter(a.cfg.DomainDelay)

	loader := source.NewLoader(
		a.cfg.FetchTimeout,
		a.cfg.FetchRetries,
		a.cfg.UserAgents,
		a.cfg.MinContentLength,
		a.cfg.MaxFeedItems,
	).WithLimiter(limiter)

	return fetcher.NewFetcher(
		a.articles,
		a.sources,
		a.competitors,
		loader,
		limiter,
		a.cfg.FetchConcurrency,
		a.cfg.FilterKeywords,
	)
}

// batch собирает классификатор. Без ключа OpenAI возвращает classifier.ErrMissingAPIKey.
func (a *app) batch() (*classifier.Batch, error) {
	completer, err := classifier.NewOpenAICompleter(
		a.cfg.OpenAIKey,
		a.cfg.OpenAIBaseURL,
		a.cfg.OpenAIModel,
		a.cfg.OpenAIMaxTokens,
		a.cfg.OpenAITimeout,
		a.cfg.OpenAIRetries,
	)
	if err != nil {
		return nil, err
	}

	engine := classifier.New(
		completer,
		a.events,
		ratelimit.NewWindow(a.cfg.LLMRequestsPerSecond, time.Second),
		a.roster.Taxonomy(),
		a.cfg.ConfidenceThreshold,
	)

	return classifier.NewBatch(engine, a.articles, a.events, a.cfg.ClassifyLimit), nil
}

// pipeline без классификатора только собирает статьи
func (a *app) pipeline(batch *classifier.Batch) *pipeline.Pipeline {
	var setClassifier pipeline.SetClassifier
	if batch != nil {
		setClassifier = batch
	}

	return pipeline.New(a.competitors, a.sources, a.fetcher(), setClassifier, a.cfg.FetchInterval)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
