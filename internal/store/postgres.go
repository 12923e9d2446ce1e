package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/config"
)

// Postgres is the lib/pq-backed Store implementation. It keeps two
// pools — writer and reader — so read-heavy operations (chat listing,
// search, pagination) can be routed to a replica while mutations always
// go through the writer (spec.md §4.1 "two connection pools").
type Postgres struct {
	writer *sql.DB
	reader *sql.DB
	logger *logrus.Logger

	stmtTimeout    time.Duration
	searchLanguage string

	mu    sync.RWMutex
	stmts map[string]*sql.Stmt
}

// NewPostgres opens the writer (and, if configured, reader) pools and
// prepares the hottest statements. searchLanguage selects the
// to_tsvector/to_tsquery regconfig used by FullTextSearch (spec.md §9
// Open Question: configurable, defaulting to "english").
func NewPostgres(cfg config.DatabaseConfig, searchLanguage string, logger *logrus.Logger) (*Postgres, error) {
	writer, err := sql.Open("postgres", cfg.WriterDSN)
	if err != nil {
		return nil, fmt.Errorf("store: open writer: %w", err)
	}
	writer.SetMaxOpenConns(cfg.MaxOpenConns)
	writer.SetMaxIdleConns(cfg.MaxIdleConns)
	writer.SetConnMaxIdleTime(cfg.ConnMaxIdle)

	reader := writer
	if cfg.ReaderDSN != "" {
		reader, err = sql.Open("postgres", cfg.ReaderDSN)
		if err != nil {
			return nil, fmt.Errorf("store: open reader: %w", err)
		}
		reader.SetMaxOpenConns(cfg.MaxOpenConns / 2)
		reader.SetMaxIdleConns(cfg.MaxIdleConns / 2)
	}

	if searchLanguage == "" {
		searchLanguage = "english"
	}

	p := &Postgres{
		writer:         writer,
		reader:         reader,
		logger:         logger,
		stmtTimeout:    cfg.StmtTimeout,
		searchLanguage: searchLanguage,
		stmts:          make(map[string]*sql.Stmt),
	}

	if err := p.prepareStatements(); err != nil {
		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}
	return p, nil
}

const (
	stmtFindChatByID    = "findChatByID"
	stmtInsertMessage   = "insertMessage"
	stmtInsertDelivery  = "insertDelivery"
	stmtFindUserByID    = "findUserByID"
)

func (p *Postgres) prepareStatements() error {
	statements := map[string]string{
		stmtFindChatByID: `
			SELECT id, kind, name, slug, avatar_ref, owner_id, created_at, updated_at, last_message_at, deleted
			FROM chats WHERE id = $1`,
		stmtInsertMessage: `
			INSERT INTO messages (id, chat_id, sender_id, body, kind, metadata, reply_to_id, edited, deleted, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,false,false,$8)`,
		stmtInsertDelivery: `
			INSERT INTO deliveries (id, message_id, user_id, status)
			VALUES ($1,$2,$3,'sent')`,
		stmtFindUserByID: `
			SELECT id, handle, credential_hash, display_name, avatar_ref, status, last_seen_at, created_at, updated_at
			FROM users WHERE id = $1`,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for name, query := range statements {
		stmt, err := p.writer.Prepare(query)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", name, err)
		}
		p.stmts[name] = stmt
	}
	return nil
}

func (p *Postgres) stmt(name string) *sql.Stmt {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stmts[name]
}

// Close releases prepared statements and both connection pools.
func (p *Postgres) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.stmts {
		_ = s.Close()
	}
	if p.reader != p.writer {
		_ = p.reader.Close()
	}
	return p.writer.Close()
}

// ErrNotFound-style sentinels are returned through apperr at the call
// site so every operation shares the same taxonomy (see internal/apperr).
func isNoRows(err error) bool { return err == sql.ErrNoRows }
