package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"event-gateway/eventstore/domain"
	"event-gateway/middleware/ratelimit/application"
	rlinfra "event-gateway/middleware/ratelimit/infra"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    start_date INTEGER NOT NULL,
    ip_address TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    event_name TEXT NOT NULL,
    time INTEGER NOT NULL,
    ip_address TEXT NOT NULL,
    params TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session_time ON events(session_id, time, id);
`

const (
	insertSessionSQL = `INSERT INTO sessions (session_id, start_date, ip_address) VALUES (?, ?, ?)`
	insertEventSQL   = `INSERT INTO events (session_id, event_name, time, ip_address, params) VALUES (?, ?, ?, ?, json(?))`
	selectEventsSQL  = `SELECT id, event_name, time, params FROM events WHERE session_id = ? ORDER BY time ASC, id ASC`
	selectSessionSQL = `SELECT session_id, start_date FROM sessions`
)

// MemoryPath abre um banco só em memória. Leituras passam pela conexão de escrita.
const MemoryPath = ":memory:"

// SQLiteStore implementa domain.Store.
//
// O SQLite aceita um escritor por vez. Toda escrita pega a única vaga de
// writeSlots (com timeout) e só a segura durante o statement. Leituras usam
// outro *sql.DB somente leitura com várias conexões (WAL permite leitores
// concorrentes). Os statements são preparados uma vez; o database/sql os
// prepara de novo por conexão sob demanda e mantém em cache.
type SQLiteStore struct {
	writer     *sql.DB
	reader     *sql.DB
	writeSlots application.ConcurrencyService
	now        func() time.Time
	newID      func() string

	insertSession *sql.Stmt
	insertEvent   *sql.Stmt
	selectEvents  *sql.Stmt
	selectSession *sql.Stmt
}

type Options struct {
	// Path do arquivo do banco, ou MemoryPath.
	Path string
	// ReadConns é o tamanho do pool de leitura. Padrão 4.
	ReadConns int
	// WriteTimeout limita a espera pela vaga de escrita. 0 espera até o ctx encerrar.
	WriteTimeout time.Duration
	// BusyTimeout é o busy_timeout do SQLite. Padrão 5s.
	BusyTimeout time.Duration
}

type Option func(*SQLiteStore)

// WithClock troca a fonte de tempo usada em start_date.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// WithIDGenerator troca o gerador de session_id.
func WithIDGenerator(fn func() string) Option {
	return func(s *SQLiteStore) { s.newID = fn }
}

// Open abre (ou cria) o banco, aplica o schema e prepara os statements.
func Open(ctx context.Context, opts Options, extra ...Option) (*SQLiteStore, error) {
	if opts.Path == "" {
		return nil, errors.New("eventstore: database path is required")
	}
	if opts.ReadConns <= 0 {
		opts.ReadConns = 4
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	s := &SQLiteStore{
		writeSlots: application.ConcurrencyService{
			Pool:           rlinfra.NewChanPool(1),
			AcquireTimeout: opts.WriteTimeout,
		},
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range extra {
		opt(s)
	}

	memory := opts.Path == MemoryPath

	writer, err := sql.Open("sqlite3", dsn(opts, memory, false))
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	// um banco em memória morre junto com a conexão
	writer.SetConnMaxLifetime(0)
	writer.SetConnMaxIdleTime(0)
	s.writer = writer

	if err := s.initSchema(ctx); err != nil {
		_ = writer.Close()
		return nil, err
	}

	if memory {
		s.reader = writer
	} else {
		reader, err := sql.Open("sqlite3", dsn(opts, false, true))
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("open reader: %w", err)
		}
		reader.SetMaxOpenConns(opts.ReadConns)
		reader.SetMaxIdleConns(opts.ReadConns)
		s.reader = reader
	}

	if err := s.prepare(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func dsn(opts Options, memory, readOnly bool) string {
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprint(opts.BusyTimeout.Milliseconds()))
	if memory {
		return "file::memory:?" + q.Encode()
	}
	if readOnly {
		// o escritor já deixou o arquivo em WAL
		q.Set("mode", "ro")
	} else {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
		q.Set("_txlock", "immediate")
	}
	return "file:" + opts.Path + "?" + q.Encode()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	if _, err := s.writer.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%w: init schema: %w", domain.ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) prepare(ctx context.Context) error {
	var err error
	prep := func(db *sql.DB, query string) *sql.Stmt {
		if err != nil {
			return nil
		}
		var stmt *sql.Stmt
		stmt, err = db.PrepareContext(ctx, query)
		return stmt
	}

	s.insertSession = prep(s.writer, insertSessionSQL)
	s.insertEvent = prep(s.writer, insertEventSQL)
	s.selectEvents = prep(s.reader, selectEventsSQL)
	s.selectSession = prep(s.reader, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("%w: prepare: %w", domain.ErrStorage, err)
	}
	return nil
}

// exec roda um statement de escrita segurando a vaga do escritor.
// Depois que a vaga foi obtida, o statement não é mais cancelado pelo ctx:
// o que chega no banco fica gravado.
func (s *SQLiteStore) exec(ctx context.Context, op string, stmt *sql.Stmt, args ...any) error {
	err := s.writeSlots.Do(ctx, func() error {
		_, err := stmt.ExecContext(context.WithoutCancel(ctx), args...)
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, application.ErrNoSlot):
		return fmt.Errorf("%w: %s", domain.ErrWriterBusy, op)
	default:
		return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
	}
}

func (s *SQLiteStore) CreateSession(ctx context.Context, ip string) (string, error) {
	id := s.newID()
	start := s.now().Unix()
	if start < 0 {
		start = 0
	}

	if err := s.exec(ctx, "insert session", s.insertSession, id, start, ip); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) IngestEvent(ctx context.Context, ev domain.NewEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return s.exec(ctx, "insert event", s.insertEvent,
		ev.SessionID, ev.EventName, int64(ev.Time), ev.IP, string(ev.Params))
}

func (s *SQLiteStore) ListEvents(ctx context.Context, sessionID string) ([]domain.Event, error) {
	rows, err := s.selectEvents.QueryContext(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: select events: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var (
			ev     domain.Event
			t      int64
			params []byte
		)
		if err := rows.Scan(&ev.ID, &ev.EventName, &t, &params); err != nil {
			return nil, fmt.Errorf("%w: scan event: %w", domain.ErrStorage, err)
		}
		if t > 0 {
			ev.Time = uint64(t)
		}
		ev.Params = domain.DecodeParams(params)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: select events: %w", domain.ErrStorage, err)
	}
	return events, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.SessionInfo, error) {
	rows, err := s.selectSession.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: select sessions: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	sessions := []domain.SessionInfo{}
	for rows.Next() {
		var (
			info  domain.SessionInfo
			start int64
		)
		if err := rows.Scan(&info.SessionID, &start); err != nil {
			return nil, fmt.Errorf("%w: scan session: %w", domain.ErrStorage, err)
		}
		if start > 0 {
			info.StartDate = uint64(start)
		}
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: select sessions: %w", domain.ErrStorage, err)
	}
	return sessions, nil
}

// Ping verifica os dois pools.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.writer.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping writer: %w", domain.ErrStorage, err)
	}
	if err := s.reader.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping reader: %w", domain.ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{s.insertSession, s.insertEvent, s.selectEvents, s.selectSession} {
		if stmt != nil {
			errs = append(errs, stmt.Close())
		}
	}
	if s.reader != nil && s.reader != s.writer {
		errs = append(errs, s.reader.Close())
	}
	if s.writer != nil {
		errs = append(errs, s.writer.Close())
	}
	return errors.Join(errs...)
}
