package repository

import (
	"context"
	"fmt"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/pkg/logger"

	"github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientLevel = errors.New("insufficient level")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver       string        `mapstructure:"driver"`
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	Name         string        `mapstructure:"name"`
	SSLMode      string        `mapstructure:"sslMode"`
	Path         string        `mapstructure:"path"`
	QueryTimeout time.Duration `mapstructure:"queryTimeout"`
	MaxOpenConns int           `mapstructure:"maxOpenConns"`
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Path == "" {
		c.Path = "ecoquest.db"
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5 * time.Second
	}
	return c
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

// sqliteDSN serializes writers through a busy timeout; sqlite has no row locks.
func (c *Config) sqliteDSN() string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", c.Path)
}

type Repository struct {
	db      *sqlx.DB
	driver  string
	sb      squirrel.StatementBuilderType
	timeout time.Duration

	xpPerLevel      int
	vitalityMax     int64
	vitalityCeiling int64
}

type Option func(*Repository)

// WithXPPerLevel sets the XP step used to derive levels on every stats write.
func WithXPPerLevel(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.xpPerLevel = n
		}
	}
}

// WithVitalityMax sets the ceiling of the primary vitality kept in user stats.
func WithVitalityMax(n int64) Option {
	return func(r *Repository) {
		if n > 0 {
			r.vitalityMax = n
		}
	}
}

// WithVitalityCeiling bounds the secondary vitality row. Zero keeps it unbounded.
func WithVitalityCeiling(n int64) Option {
	return func(r *Repository) {
		if n >= 0 {
			r.vitalityCeiling = n
		}
	}
}

func New(cfg Config, opts ...Option) (*Repository, error) {
	cfg = cfg.withDefaults()

	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres:
		db, err = sqlx.Connect("pgx", cfg.GetDatabaseURL())
	case DriverSQLite:
		db, err = sqlx.Connect("sqlite", cfg.sqliteDSN())
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.MaxOpenConns > 0 && cfg.Driver == DriverPostgres {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Logger().Info("Connected to database successfully", zap.String("driver", cfg.Driver))

	return NewWithDB(db, cfg.Driver, cfg.QueryTimeout, opts...), nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sqlx.DB, driver string, timeout time.Duration, opts ...Option) *Repository {
	var placeholder squirrel.PlaceholderFormat = squirrel.Dollar
	if driver == DriverSQLite {
		placeholder = squirrel.Question
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	r := &Repository{
		db:          db,
		driver:      driver,
		sb:          squirrel.StatementBuilder.PlaceholderFormat(placeholder),
		timeout:     timeout,
		xpPerLevel:  model.DefaultXPPerLevel,
		vitalityMax: model.DefaultVitalityMax,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) XPPerLevel() int {
	return r.xpPerLevel
}

func (r *Repository) Transaction(ctx context.Context, t func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	err = t(tx)
	if err != nil {
		txErr := tx.Rollback()
		if txErr != nil {
			return errors.Wrapf(err, "rollback error: %v", txErr)
		}
		return err
	}
	return tx.Commit()
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// lockRow appends a row lock where the dialect has one.
func (r *Repository) lockRow(q squirrel.SelectBuilder) squirrel.SelectBuilder {
	if r.driver == DriverPostgres {
		return q.Suffix("FOR UPDATE")
	}
	return q
}

func (r *Repository) levelFor(xp int64) int {
	return model.LevelForXP(xp, r.xpPerLevel)
}
