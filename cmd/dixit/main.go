package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/chriskillpack/dixit"
	"github.com/chriskillpack/dixit/gamestate"
	"github.com/chriskillpack/dixit/internal/config"
	"github.com/chriskillpack/dixit/internal/logging"
	"github.com/spf13/cobra"
)

// app holds what the subcommands share. Everything is built on first use so
// commands like score never talk to a model server.
type app struct {
	configPath string
	envFile    string
	dbPath     string
	handsDir   string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
	d      *dixit.Dixit
	db     *dixit.DB
	store  *gamestate.Store
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	if err := config.LoadEnv(a.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.handsDir != "" {
		cfg.HandsDir = a.handsDir
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) dixit() (*dixit.Dixit, error) {
	if a.d != nil {
		return a.d, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	d, err := dixit.Init(dixit.InitOptions{Config: cfg, Logger: a.logger})
	if err != nil {
		return nil, err
	}
	a.d = d
	return d, nil
}

func (a *app) database(ctx context.Context) (*dixit.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	db, err := dixit.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.DBPath, err)
	}
	a.db = db
	return db, nil
}

func (a *app) hands() (*gamestate.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	store, err := gamestate.NewStore(cfg.HandsDir)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// sighandler cancels the running command on the first SIGINT and exits on
// the second.
func sighandler(ch chan os.Signal, cancel context.CancelFunc) {
	<-ch
	fmt.Fprintln(os.Stderr, "SIGINT received, stopping...")
	cancel()
	<-ch
	fmt.Fprintln(os.Stderr, "Exiting")
	os.Exit(1)
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dixit",
		Short: "Play Dixit with vision and language models",
		Long: `dixit composes clues for Dixit cards and guesses which card on the table
matches a clue, by captioning each card with an ensemble of vision models,
questioning a visual question answering model about it and reasoning over
the result with a language model.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = logging.NewLogger(os.Stderr, level)
			slog.SetDefault(a.logger)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env", ".env", "Path to .env file with API keys")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "Path to results database (default from config)")
	rootCmd.PersistentFlags().StringVar(&a.handsDir, "hands", "", "Directory of hand files (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log every pipeline stage")

	rootCmd.AddCommand(
		newCaptionCmd(a),
		newClueCmd(a),
		newGuessCmd(a),
		newHandCmd(a),
		newScoreCmd(a),
		newHistoryCmd(a),
		newHealthCmd(a),
		newServeCmd(a),
	)
	return rootCmd
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that every configured model server responds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.dixit()
			if err != nil {
				return err
			}

			health := d.Health()
			printed := map[string]bool{}
			var down int
			for _, b := range d.Backends {
				if printed[b.Name()] {
					continue
				}
				printed[b.Name()] = true

				status := "ok"
				if !health[b.Name()] {
					status = "not responding"
					down++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", b.Name(), status)
			}
			if down > 0 {
				return fmt.Errorf("%d backends not responding", down)
			}
			return nil
		},
	}
}

func main() {
	a := &app{}
	defer a.close()

	sigch := make(chan os.Signal, 2)
	signal.Notify(sigch, os.Interrupt)

	ctx, cancel := context.WithCancel(context.Background())
	go sighandler(sigch, cancel)

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		a.close()
		os.Exit(1)
	}
}
