package msglog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// ErrDisabled is returned by Open when no DSN is configured. The caller is
// expected to run without an audit log in that case.
var ErrDisabled = errors.New("message log is disabled")

type Config struct {
	DSN     string        `envconfig:"DSN"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
}

// Entry is one handled webhook message. Conversation state itself is never
// stored here; this is an append-only audit trail.
type Entry struct {
	bun.BaseModel `bun:"table:message_log"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	Sender     string    `bun:"sender,notnull"`
	Body       string    `bun:"body,notnull"`
	Reply      string    `bun:"reply,notnull"`
	Failed     bool      `bun:"failed,notnull,default:false"`
	DurationMS int64     `bun:"duration_ms,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Logger records handled messages in Postgres.
type Logger struct {
	db      *bun.DB
	timeout time.Duration
}

// Open connects to Postgres and ensures the audit table exists. With an
// empty DSN it returns ErrDisabled.
func Open(ctx context.Context, cfg Config) (*Logger, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, ErrDisabled
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	logger := &Logger{db: db, timeout: timeout}
	if err := logger.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return logger, nil
}

func (l *Logger) ensureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	_, err := l.db.NewCreateTable().
		Model((*Entry)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Record inserts one entry. IDs and timestamps are filled in when zero.
func (l *Logger) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	_, err := l.db.NewInsert().Model(&entry).Exec(ctx)
	return err
}

func (l *Logger) Close() error {
	return l.db.Close()
}
