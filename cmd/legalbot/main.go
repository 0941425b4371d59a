// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.solispartners.kz/bot/internal/api/google/drive"
	"go.solispartners.kz/bot/internal/api/google/gemini"
	"go.solispartners.kz/bot/internal/api/google/serviceaccount"
	"go.solispartners.kz/bot/internal/api/google/sheets"
	"go.solispartners.kz/bot/internal/cli"
	"go.solispartners.kz/bot/internal/cli/envflag"
	"go.solispartners.kz/bot/internal/creds"
	"go.solispartners.kz/bot/internal/digest"
	"go.solispartners.kz/bot/internal/filelock"
	"go.solispartners.kz/bot/internal/httplogger"
	"go.solispartners.kz/bot/internal/logger"
	"go.solispartners.kz/bot/internal/store"
	"go.solispartners.kz/bot/internal/telegram"
	"go.solispartners.kz/bot/internal/util/syncx"
	"go.solispartners.kz/bot/internal/web"

	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

func main() { cli.Main(new(engine)) }

const (
	catalogTTL        = 10 * time.Minute
	flushInterval     = 5 * time.Minute
	backupInterval    = 12 * time.Hour
	digestInterval    = 24 * time.Hour
	errNotifyCooldown = time.Hour
	backupKeepCount   = 14
	httpTimeout       = 60 * time.Second
)

type engine struct {
	init syncx.Lazy[error] // main initialization

	// flags
	addr    *string
	verbose *bool
	getenv  func(string) string // defaults to os.Getenv; set before Flags in tests

	// configuration, read-only after initialization
	tgToken       string
	tgBaseURL     string // overridden in tests
	adminChatID   int64
	spreadsheetID string
	geminiKey     string
	databaseURL   string
	driveFolderID string
	digestFeeds   []string
	digestChatID  int64
	lockPath      string
	httpc         *http.Client
	stderr        io.Writer

	// initialized by doInit
	logf      logger.Logf
	logStream logger.Streamer
	scrubber  *strings.Replacer
	store     store.Store
	tg        *telegram.Client
	sheetsc   *sheets.Client
	geminic   *gemini.Client
	drivec    *drive.Client
	dig       *digest.Digest
	mux       *http.ServeMux
	startTime time.Time

	polling atomic.Bool

	errNotifyMu   sync.Mutex
	errLastNotify map[string]time.Time

	// for tests
	noServerStart bool
}

func (e *engine) Flags(fs *flag.FlagSet) {
	if e.getenv == nil {
		e.getenv = os.Getenv
	}
	e.addr = envflag.Value("addr", "ADDR", ":8080", "Listen on `addr`.", fs, e.getenv)
	e.verbose = fs.Bool("verbose", false, "Log HTTP requests to Telegram and Google APIs.")
}

func (e *engine) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	// A .env in the working directory is a developer convenience; production
	// configures the real environment.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("loading .env: %w", err)
		}
	}

	e.tgToken = cmp.Or(e.tgToken, env.Getenv("TG_TOKEN"))
	e.adminChatID = cmp.Or(e.adminChatID, parseInt(env.Getenv("ADMIN_CHAT_ID")))
	e.spreadsheetID = cmp.Or(e.spreadsheetID, env.Getenv("SPREADSHEET_ID"))
	e.geminiKey = cmp.Or(e.geminiKey, env.Getenv("GEMINI_KEY"))
	e.databaseURL = cmp.Or(e.databaseURL, env.Getenv("DATABASE_URL"))
	e.driveFolderID = cmp.Or(e.driveFolderID, env.Getenv("DRIVE_FOLDER_ID"))
	e.digestChatID = cmp.Or(e.digestChatID, parseInt(env.Getenv("DIGEST_CHAT_ID")))
	e.lockPath = cmp.Or(e.lockPath, env.Getenv("LOCK_FILE"), "legalbot.lock")
	if feeds := env.Getenv("DIGEST_FEEDS"); feeds != "" && e.digestFeeds == nil {
		for _, f := range strings.Split(feeds, ",") {
			if f = strings.TrimSpace(f); f != "" {
				e.digestFeeds = append(e.digestFeeds, f)
			}
		}
	}
	e.stderr = env.Stderr

	if e.tgToken == "" {
		return fmt.Errorf("%w: TG_TOKEN environment variable is not set", cli.ErrInvalidArgs)
	}

	if err := e.init.Get(func() error {
		return e.doInit(ctx, env)
	}); err != nil {
		return err
	}

	// Used in tests.
	if e.noServerStart {
		return nil
	}

	// A second instance long-polling with the same token would steal updates.
	lock, err := filelock.Acquire(e.lockPath, strconv.Itoa(os.Getpid()))
	if err != nil {
		return fmt.Errorf("acquiring %s: %w", e.lockPath, err)
	}
	defer lock.Release()

	go e.poll(ctx)
	go e.runJobs(ctx)

	return web.ListenAndServe(ctx, &web.ListenAndServeConfig{
		Addr:       *e.addr,
		Mux:        e.mux,
		Logf:       e.logf,
		Debuggable: true,
	})
}

func (e *engine) doInit(ctx context.Context, env *cli.Env) error {
	e.startTime = time.Now()
	e.errLastNotify = make(map[string]time.Time)

	if e.stderr == nil {
		e.stderr = os.Stderr
	}

	const logLineLimit = 300
	e.logStream = logger.NewStreamer(logLineLimit)
	e.logf = log.New(io.MultiWriter(e.stderr, e.logStream), "", log.LstdFlags).Printf

	var scrubPairs []string
	for _, val := range []string{e.tgToken, e.geminiKey} {
		if val != "" {
			scrubPairs = append(scrubPairs, val, "[EXPUNGED]")
		}
	}
	if len(scrubPairs) > 0 {
		e.scrubber = strings.NewReplacer(scrubPairs...)
	}

	if e.httpc == nil {
		e.httpc = &http.Client{
			// Gemini and long polls take a while.
			Timeout: httpTimeout,
		}
	}
	if *e.verbose {
		base := e.httpc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		e.httpc.Transport = httplogger.New(base, httplogger.Logf(e.logf))
	}

	var err error
	// State must survive restarts, so entries never expire.
	e.store, err = store.Open(ctx, e.databaseURL, 0)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	e.tg = telegram.New(telegram.Config{
		Token:      e.tgToken,
		BaseURL:    e.tgBaseURL,
		HTTPClient: e.httpc,
		Scrubber:   e.scrubber,
		Logf:       e.logf,
	})

	me, err := e.tg.Me(ctx)
	if err != nil {
		return fmt.Errorf("verifying bot token: %w", err)
	}
	e.logf("Running as @%s.", me.Username)

	credsPath := creds.Path(env.Getenv)
	key, keyErr := loadKeyFile(credsPath)
	if keyErr != nil {
		e.logf("No usable service account key at %s (%v); catalog, leads and backups are disabled.", credsPath, keyErr)
	}

	if key != nil && e.spreadsheetID != "" {
		e.sheetsc, err = sheets.NewClient(ctx, sheets.Config{
			SpreadsheetID: e.spreadsheetID,
			Logf:          e.logf,
			Store:         e.store,
			CatalogTTL:    catalogTTL,
			ClientOptions: []option.ClientOption{
				option.WithCredentialsFile(credsPath),
			},
		})
		if err != nil {
			return err
		}
	}
	if key != nil && e.driveFolderID != "" {
		e.drivec = &drive.Client{
			Key:        key,
			FolderID:   e.driveFolderID,
			HTTPClient: e.httpc,
			Scrubber:   e.scrubber,
		}
	}
	if e.geminiKey != "" {
		e.geminic = &gemini.Client{
			APIKey:     e.geminiKey,
			HTTPClient: e.httpc,
			Scrubber:   e.scrubber,
		}
	}
	if len(e.digestFeeds) > 0 {
		e.dig = digest.New(digest.Config{
			Feeds:      e.digestFeeds,
			Store:      e.store,
			HTTPClient: e.httpc,
			Logf:       e.logf,
		})
	}

	e.initRoutes()

	return nil
}

func loadKeyFile(path string) (*serviceaccount.Key, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := serviceaccount.LoadKey(b)
	if err != nil {
		return nil, err
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return key, nil
}

func (e *engine) initRoutes() {
	e.mux = http.NewServeMux()

	health := web.Health(e.mux)
	health.RegisterFunc("telegram", func() (string, bool) {
		if e.polling.Load() {
			return "polling", true
		}
		return "not polling", false
	})
	if e.sheetsc != nil {
		health.RegisterFunc("sheets", func() (string, bool) {
			if e.sheetsc.Healthy() {
				return "ok", true
			}
			return "circuit breaker open", false
		})
	}

	dbg := web.Debugger(e.logf, e.mux)
	dbg.KVFunc("Bot uptime", func() any { return time.Since(e.startTime).Round(time.Second) })
	dbg.KV("Store", storeDescription(e.databaseURL))
	dbg.Handle("log", "Logs", e.logStream)
}

func storeDescription(databaseURL string) string {
	scheme, _, ok := strings.Cut(databaseURL, "://")
	if !ok || scheme == "" {
		return "mem"
	}
	return scheme
}

// poll runs the Telegram long poller, restarting it on failure until ctx is
// canceled.
func (e *engine) poll(ctx context.Context) {
	e.polling.Store(true)
	defer e.polling.Store(false)

	for ctx.Err() == nil {
		if err := e.tg.Poll(ctx, e.handleUpdate); err != nil && ctx.Err() == nil {
			e.logf("Poller stopped: %v; restarting.", err)
			time.Sleep(5 * time.Second)
		}
	}
}

func parseInt(s string) int64 {
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return i
	}
	return 0
}
