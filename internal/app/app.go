package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"ipwarden/internal/app/version"
	"ipwarden/internal/config"
	"ipwarden/internal/geolite"
	"ipwarden/internal/logging"
	"ipwarden/internal/store"
	"ipwarden/internal/support"
	"ipwarden/internal/whitelist"
)

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, NewRootCommand())
}

// execute runs root and releases the log file on every path, including
// command failures where cobra skips post-run hooks.
func execute(ctx context.Context, root *cobra.Command) (err error) {
	defer func() {
		if cerr := logging.Close(); err == nil {
			err = cerr
		}
	}()
	return root.ExecuteContext(ctx)
}

type globalFlags struct {
	settings string
	listsDir string
	workers  int
	logLevel string
	logFile  string
}

// session is the state shared by one command invocation.
type session struct {
	flags globalFlags
	cfg   config.Config
	out   io.Writer
	runID string
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree, so tests can execute commands side by side.
func NewRootCommand() *cobra.Command {
	s := &session{}

	root := &cobra.Command{
		Use:   "ipwarden",
		Short: "Maintain a malicious IP address list and its detail table",
		Long: `ipwarden keeps two files in step: a flat list of offending addresses
and a table with one row per observed event. Every command reads both
files, applies one operation and writes back what changed.`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return s.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&s.flags.settings, "settings", "", "Settings file (JSON); embedded defaults when empty or missing")
	pf.StringVar(&s.flags.listsDir, "lists-dir", "", "Directory holding the list and table files")
	pf.IntVar(&s.flags.workers, "workers", 0, "Whitelist scan workers (0 = one per CPU)")
	pf.StringVar(&s.flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&s.flags.logFile, "log-file", "", "Also write logs to this file, rotated by size")

	root.AddCommand(
		s.ingestCommand(),
		s.cleanupCommand(),
		s.removeCriteriaCommand(),
		s.removeWhitelistedCommand(),
		s.reportCommand(),
		s.geoliteUpdateCommand(),
	)
	return root
}

func (s *session) setup(cmd *cobra.Command) error {
	if err := logging.Initialize(logging.Config{Level: s.flags.logLevel, File: s.flags.logFile}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	cfg, err := config.Load(s.flags.settings)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("lists-dir") {
		cfg.Lists.Dir = s.flags.listsDir
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = s.flags.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.cfg = cfg
	s.out = cmd.OutOrStdout()
	s.runID = uuid.NewString()
	logging.WithRunID(s.runID)

	log.Debug("Configuration loaded", "list", cfg.ListPath(), "table", cfg.TablePath(), "workers", cfg.Workers)
	return nil
}

func (s *session) manager(countries store.CountryResolver) *store.Manager {
	return store.NewManager(store.Options{
		ListPath:  s.cfg.ListPath(),
		TablePath: s.cfg.TablePath(),
		Remover:   whitelist.NewRemover(s.cfg.Workers),
		Countries: countries,
	})
}

func (s *session) httpClient() (*http.Client, error) {
	return support.NewHTTPClient(s.cfg.FetchTimeout(), s.cfg.Fetch.ProxyURL)
}

func limiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// withStoreLock runs fn while holding the Redis run lock, when one is
// configured. Without Redis, fn runs directly.
func (s *session) withStoreLock(ctx context.Context, fn func(context.Context) error) error {
	if s.cfg.Redis.URL == "" {
		return fn(ctx)
	}

	client, err := support.NewRedisClient(ctx, s.cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer client.Close()

	lock, err := support.AcquireRunLock(ctx, client, s.cfg.Redis.LockKey, s.cfg.LockTTL())
	if err != nil {
		return err
	}
	defer lock.Release()

	return fn(lock.Context())
}

func (s *session) openCountries() *geolite.Resolver {
	return geolite.OpenOptional(s.cfg.GeoLite.CountryDB)
}
