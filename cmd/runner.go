package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamknife/internal/models"
	"github.com/desertthunder/jamknife/internal/repositories"
	"github.com/desertthunder/jamknife/internal/services"
	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/desertthunder/jamknife/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The store, service clients and orchestrator are built on first use so commands that only read
// the database never need service credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	db         *sql.DB
	store      *repositories.Store
	clients    *services.Clients
	engine     *tasks.Orchestrator
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Store      *repositories.Store
	Clients    *services.Clients
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		store:      opts.Store,
		clients:    opts.Clients,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, playlistCommand, syncCommand, downloadsCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger, e.g. to keep log lines out of a full screen UI.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// loadConfig reads the config file at path when it exists, then applies environment overrides.
func (r *Runner) loadConfig(path string) error {
	r.configPath = path
	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}
	return r.config.ApplyEnv()
}

// openStore opens and migrates the database on first use.
func (r *Runner) openStore() (*repositories.Store, error) {
	if r.store != nil {
		return r.store, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db = db
	r.store = repositories.NewStore(db)
	return r.store, nil
}

func (r *Runner) services() *services.Clients {
	if r.clients == nil {
		r.clients = services.NewClients(r.config, r.logger)
	}
	return r.clients
}

// orchestrator wires the sync engine over the store and clients.
//
// Commands that reach the external services call [Runner.requireServices] first; reading or
// cancelling jobs does not need them.
func (r *Runner) orchestrator() (*tasks.Orchestrator, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	store, err := r.openStore()
	if err != nil {
		return nil, err
	}

	clients := r.services()
	r.engine = tasks.NewOrchestrator(
		store,
		clients.ListenBrainz,
		clients.Plex,
		clients.YTMusic,
		clients.Yubal,
		tasks.OptionsFromConfig(r.config),
		shared.WithLogger(r.logger, "component", "orchestrator"),
	)
	return r.engine, nil
}

func (r *Runner) requireServices() error {
	if err := r.config.Validate(); err != nil {
		return fmt.Errorf("%w (config: %s)", err, r.configPath)
	}
	return nil
}

// Close releases the database connection, if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// findPlaylist resolves a playlist by ID, then by source ref.
func (r *Runner) findPlaylist(key string) (*models.Playlist, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: playlist ID or ref", shared.ErrMissingArgument)
	}

	store, err := r.openStore()
	if err != nil {
		return nil, err
	}

	playlist, err := store.Playlists.Get(key)
	if errors.Is(err, shared.ErrPlaylistNotFound) {
		return store.Playlists.GetByRef(key)
	}
	return playlist, err
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
