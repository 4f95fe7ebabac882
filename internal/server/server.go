// Package server wires the configured stores, oracle and interview engine
// into the HTTP and MCP transports.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-interviewer/pkg/clarify"
	"github.com/txn2/mcp-interviewer/pkg/config"
	"github.com/txn2/mcp-interviewer/pkg/database/migrate"
	"github.com/txn2/mcp-interviewer/pkg/engine"
	"github.com/txn2/mcp-interviewer/pkg/evaluate"
	"github.com/txn2/mcp-interviewer/pkg/health"
	"github.com/txn2/mcp-interviewer/pkg/httpapi"
	"github.com/txn2/mcp-interviewer/pkg/intent"
	"github.com/txn2/mcp-interviewer/pkg/mcptools"
	"github.com/txn2/mcp-interviewer/pkg/oracle"
	"github.com/txn2/mcp-interviewer/pkg/question"
	questionpg "github.com/txn2/mcp-interviewer/pkg/question/postgres"
	"github.com/txn2/mcp-interviewer/pkg/selector"
	"github.com/txn2/mcp-interviewer/pkg/session"
	sessionpg "github.com/txn2/mcp-interviewer/pkg/session/postgres"
)

// Version is set at build time.
var Version = "dev"

// Server holds the wired components.
type Server struct {
	cfg      *config.Config
	db       *sql.DB
	ownsDB   bool
	sessions *session.Manager
	machine  *engine.Machine
	health   *health.Checker
	mcp      *mcp.Server
}

// Option customizes New.
type Option func(*options)

type options struct {
	oracle oracle.Oracle
	db     *sql.DB
}

// WithOracle replaces the oracle built from configuration.
func WithOracle(o oracle.Oracle) Option {
	return func(opts *options) { opts.oracle = o }
}

// WithDB uses an existing database handle instead of opening the
// configured DSN. Migrations are not run on it.
func WithDB(db *sql.DB) Option {
	return func(opts *options) { opts.db = db }
}

// NewWithDefaults creates a server from the default configuration and the
// environment.
func NewWithDefaults(ctx context.Context) (*Server, error) {
	cfg := config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New wires a server from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = Version
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{cfg: cfg, health: health.NewChecker(), db: o.db}
	if err := s.init(ctx, o); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) init(ctx context.Context, o options) error {
	if s.db == nil && needsDatabase(s.cfg) {
		db, err := openDatabase(ctx, s.cfg.Database)
		if err != nil {
			return err
		}
		s.db, s.ownsDB = db, true
	}
	if s.db != nil {
		s.health.AddProbe("database", health.PingFunc(s.db.PingContext))
	}

	bank, err := s.openBank()
	if err != nil {
		return err
	}

	store, err := s.openSessionStore()
	if err != nil {
		return err
	}
	s.sessions = session.NewManager(store, session.WithTTL(s.cfg.Session.TTL))
	s.sessions.StartSweeper(s.cfg.Session.CleanupInterval)

	orc := o.oracle
	if orc == nil {
		orc, err = oracle.New(ctx, s.cfg.Oracle.Client())
		if err != nil {
			return fmt.Errorf("creating oracle: %w", err)
		}
	}
	if _, disabled := orc.(oracle.Disabled); disabled {
		slog.Warn("no oracle configured, using rule-based classification and lexical evaluation")
	}

	s.machine, err = engine.New(engine.Config{
		Sessions:   s.sessions,
		Bank:       bank,
		Classifier: intent.New(orc, intent.WithParseRetries(s.cfg.Oracle.ParseRetries)),
		Clarifier:  clarify.New(orc),
		Evaluator: evaluate.New(orc,
			evaluate.WithThresholds(s.cfg.Evaluation.HighThreshold, s.cfg.Evaluation.LowThreshold),
			evaluate.WithConcurrency(s.cfg.Evaluation.SemanticConcurrency)),
		Selector: selector.New(bank,
			selector.WithQuestionsPerTopic(s.cfg.Questions.QuestionsPerTopic),
			selector.WithTopics(s.cfg.Questions.Topics...)),
		Policy: s.cfg.Interview,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	s.mcp = mcptools.NewServer(s.cfg.Server.Name, s.cfg.Server.Version, s.machine)

	slog.Info("interviewer configured",
		"session_store", s.cfg.Session.Store,
		"question_source", s.cfg.Questions.Source,
		"oracle", s.cfg.Oracle.Provider,
		"retry_limit", s.machine.Policy().RetryLimit)
	return nil
}

// needsDatabase reports whether a backend uses PostgreSQL. A configured DSN
// is opened and migrated even when both backends are in memory, so it can be
// seeded.
func needsDatabase(cfg *config.Config) bool {
	return cfg.Database.DSN != "" ||
		cfg.Session.Store == config.StorePostgres ||
		cfg.Questions.Source == config.SourcePostgres
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := migrate.Run(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *Server) openBank() (question.Bank, error) {
	switch s.cfg.Questions.Source {
	case config.SourcePostgres:
		return questionpg.New(s.db), nil
	default:
		return loadBank(s.cfg.Questions)
	}
}

// loadBank reads the YAML bank named by the configuration.
func loadBank(cfg config.QuestionsConfig) (*question.MemoryBank, error) {
	if cfg.Source == config.SourceFile {
		bank, err := question.LoadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("loading question bank: %w", err)
		}
		return bank, nil
	}
	bank, err := question.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("loading default question bank: %w", err)
	}
	return bank, nil
}

func (s *Server) openSessionStore() (session.Store, error) {
	switch s.cfg.Session.Store {
	case config.StorePostgres:
		return sessionpg.New(s.db), nil
	case config.StoreMemory:
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", s.cfg.Session.Store)
	}
}

// Seed copies the YAML question bank (file or embedded) into PostgreSQL.
func (s *Server) Seed(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, errors.New("seeding questions requires database.dsn")
	}
	src := s.cfg.Questions
	if src.Source == config.SourcePostgres {
		src.Source = config.SourceEmbedded
		if src.File != "" {
			src.Source = config.SourceFile
		}
	}
	bank, err := loadBank(src)
	if err != nil {
		return 0, err
	}
	questions := bank.All()
	if err := questionpg.New(s.db).Seed(ctx, questions); err != nil {
		return 0, err
	}
	slog.Info("question bank seeded", "count", len(questions))
	return len(questions), nil
}

// Config returns the effective configuration.
func (s *Server) Config() *config.Config {
	return s.cfg
}

// Machine returns the interview engine.
func (s *Server) Machine() *engine.Machine {
	return s.machine
}

// Health returns the readiness checker.
func (s *Server) Health() *health.Checker {
	return s.health
}

// MCPServer returns the MCP server exposing the interview tools.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Handler returns the HTTP API with the MCP endpoint mounted at /mcp.
func (s *Server) Handler() http.Handler {
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	return httpapi.NewHandler(httpapi.Config{
		Interviewer:  s.machine,
		Health:       s.health,
		MCP:          streamable,
		CookieSecure: s.cfg.Server.CookieSecure,
		CookieMaxAge: s.cfg.Session.TTL,
	})
}

// Close stops the sweeper and releases the database.
func (s *Server) Close() error {
	var errs []error
	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing sessions: %w", err))
		}
	}
	if s.db != nil && s.ownsDB {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}
