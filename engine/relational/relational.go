package relational

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/cachekit/engine"
	"github.com/unkn0wn-root/cachekit/internal/util"
	"github.com/unkn0wn-root/cachekit/log"
)

const (
	defaultDriver       = "sqlite"
	defaultTable        = "cache_entries"
	defaultSweep        = "@every 60s"
	defaultQueryTimeout = 5 * time.Second
	sweepOff            = "off"
)

var ErrNotConnected = errors.New("relational engine: not connected")

type Config struct {
	// DB, when set, is used instead of opening Driver/DSN and is never closed
	// by the engine. Driver still selects the SQL dialect.
	DB *sql.DB `mapstructure:"-"`

	Driver       string        `mapstructure:"driver"` // sqlite (default), postgres, pgx
	DSN          string        `mapstructure:"dsn"`    // "" => in-memory sqlite
	Table        string        `mapstructure:"table"`
	Sweep        string        `mapstructure:"sweep"` // cron spec; "off" disables
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// Relational keeps entries in one SQL table keyed by path. Expiry is stored
// as unix nanoseconds and filtered on every read; a cron job deletes rows
// that have expired.
type Relational struct {
	driver  string
	dsn     string
	dialect dialect
	q       queries
	sweep   string
	timeout time.Duration
	log     log.Logger
	now     func() time.Time

	mu        sync.Mutex
	db        *sql.DB
	ownsDB    bool
	cron      *cron.Cron
	connected bool
	closed    bool
}

var _ engine.Engine = (*Relational)(nil)

func New(cfg Config, logger log.Logger) (*Relational, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = defaultDriver
	}
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !identRe.MatchString(table) {
		return nil, engine.BadRequest("relational engine: invalid table name %q", table)
	}
	sweep := cfg.Sweep
	if sweep == "" {
		sweep = defaultSweep
	}
	if sweep != sweepOff {
		if _, err := cron.ParseStandard(sweep); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "relational engine: sweep schedule %q", sweep), engine.ErrBadRequest)
		}
	}
	timeout := cfg.QueryTimeout
	if timeout == 0 {
		timeout = defaultQueryTimeout
	}
	return &Relational{
		driver:  driver,
		dsn:     cfg.DSN,
		dialect: d,
		q:       buildQueries(d, table),
		sweep:   sweep,
		timeout: timeout,
		log:     log.OrNop(logger),
		now:     time.Now,
		db:      cfg.DB,
	}, nil
}

func (r *Relational) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if r.timeout < 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, r.timeout)
}

func (r *Relational) handle() (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return nil, ErrNotConnected
	}
	return r.db, nil
}

// Connect opens the database (unless one was supplied), creates the table and
// starts the sweep job. Repeated calls are no-ops.
func (r *Relational) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return nil
	}
	if r.closed {
		return errors.New("relational engine: closed")
	}

	if r.db == nil {
		dsn := r.dsn
		if dsn == "" {
			dsn = ":memory:"
		}
		db, err := sql.Open(r.driver, dsn)
		if err != nil {
			return errors.Wrap(err, "relational engine: open")
		}
		if dsn == ":memory:" {
			// every pooled connection would get its own empty database
			db.SetMaxOpenConns(1)
		}
		r.db, r.ownsDB = db, true
	}

	if err := r.prepare(ctx); err != nil {
		r.releaseOwnedDB()
		return err
	}

	if r.sweep != sweepOff {
		cl := cronLogger{r.log}
		c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))
		if _, err := c.AddFunc(r.sweep, r.sweepJob); err != nil {
			r.releaseOwnedDB()
			return errors.Wrap(err, "relational engine: schedule sweep")
		}
		r.cron = c
		r.cron.Start()
	}
	r.connected = true
	return nil
}

// releaseOwnedDB undoes a partial Connect. Callers hold r.mu.
func (r *Relational) releaseOwnedDB() {
	if !r.ownsDB {
		return
	}
	_ = r.db.Close()
	r.db, r.ownsDB = nil, false
}

func (r *Relational) prepare(ctx context.Context) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	if err := r.db.PingContext(qctx); err != nil {
		return errors.Wrap(err, "relational engine: ping")
	}
	if r.dialect.name == sqliteDialect.name {
		if _, err := r.db.ExecContext(qctx, `PRAGMA journal_mode=WAL`); err != nil {
			return errors.Wrap(err, "relational engine: enable WAL")
		}
	}
	if _, err := r.db.ExecContext(qctx, r.q.createTable); err != nil {
		return errors.Wrap(err, "relational engine: create table")
	}
	if _, err := r.db.ExecContext(qctx, r.q.createIndex); err != nil {
		return errors.Wrap(err, "relational engine: create index")
	}
	return nil
}

func (r *Relational) sweepJob() {
	n, err := r.Sweep(context.Background())
	if err != nil {
		r.log.Warn("relational engine sweep failed", log.Fields{"err": err})
		return
	}
	if n > 0 {
		r.log.Debug("relational engine swept expired rows", log.Fields{"removed": n})
	}
}

// Sweep deletes expired rows and reports how many were removed.
func (r *Relational) Sweep(ctx context.Context) (int64, error) {
	db, err := r.handle()
	if err != nil {
		return 0, err
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	res, err := db.ExecContext(qctx, r.q.sweep, r.now().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Relational) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := r.handle()
	if err != nil {
		return nil, false, err
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	var value []byte
	err = db.QueryRowContext(qctx, r.q.get, key, r.now().UnixNano()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func nullExpiry(exp time.Time) sql.NullInt64 {
	if exp.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: exp.UnixNano(), Valid: true}
}

func (r *Relational) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	db, err := r.handle()
	if err != nil {
		return err
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	if value == nil {
		value = []byte{}
	}
	exp := nullExpiry(engine.Deadline(r.now(), ttl))
	_, err = db.ExecContext(qctx, r.q.upsert, key, exp, value)
	return err
}

func (r *Relational) Del(ctx context.Context, key string) error {
	db, err := r.handle()
	if err != nil {
		return err
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	_, err = db.ExecContext(qctx, r.q.del, key)
	return err
}

func (r *Relational) Expire(ctx context.Context, key string, ttl time.Duration) error {
	db, err := r.handle()
	if err != nil {
		return err
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	now := r.now()
	_, err = db.ExecContext(qctx, r.q.expire, nullExpiry(engine.Deadline(now, ttl)), key, now.UnixNano())
	return err
}

func (r *Relational) ExpiresAt(ctx context.Context, key string) (time.Time, bool, error) {
	db, err := r.handle()
	if err != nil {
		return time.Time{}, false, err
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	var exp sql.NullInt64
	err = db.QueryRowContext(qctx, r.q.expiresAt, key, r.now().UnixNano()).Scan(&exp)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !exp.Valid) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, exp.Int64), true, nil
}

func (r *Relational) Flush(ctx context.Context, needle string) error {
	db, err := r.handle()
	if err != nil {
		return err
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	if needle == "" {
		_, err = db.ExecContext(qctx, r.q.flushAll)
		return err
	}
	_, err = db.ExecContext(qctx, r.q.flushPrefix, util.LikeEscape(needle)+"%")
	return err
}

// Client returns the *sql.DB once connected.
func (r *Relational) Client() (any, error) {
	db, err := r.handle()
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Close stops the sweep job and closes the database if the engine opened it.
func (r *Relational) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.connected = false
	c, db, owns := r.cron, r.db, r.ownsDB
	r.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if owns && db != nil {
		return db.Close()
	}
	return nil
}

// cronLogger routes cron's scheduler messages to the engine logger.
type cronLogger struct{ l log.Logger }

func kvFields(kv []any) log.Fields {
	f := make(log.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("cron: "+msg, kvFields(kv)) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	f := kvFields(kv)
	f["err"] = err
	c.l.Error("cron: "+msg, f)
}
