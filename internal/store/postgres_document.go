package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// documentChannel carries the name of every key written to the document table.
const documentChannel = "document_changes"

const (
	relistenMinDelay = time.Second
	relistenMaxDelay = 30 * time.Second
)

// listener yields the payloads of document change notifications.
type listener interface {
	wait(ctx context.Context) (string, error)
	close()
}

// PostgresDocument is the cloud adapter: the whole dataset is one JSONB
// document row, merged key by key so concurrent writers of different keys do
// not overwrite each other.
type PostgresDocument struct {
	pool  *pgxpool.Pool
	docID string
	log   zerolog.Logger

	listen   func(ctx context.Context) (listener, error)
	fetchKey func(ctx context.Context, key Key) (json.RawMessage, error)
	fetchAll func(ctx context.Context) (Snapshot, error)
	minDelay time.Duration
}

// NewPostgresDocument creates an adapter storing the dataset in row docID.
func NewPostgresDocument(pool *pgxpool.Pool, docID string, log zerolog.Logger) *PostgresDocument {
	d := &PostgresDocument{
		pool:     pool,
		docID:    docID,
		log:      log.With().Str("component", "postgres_document").Logger(),
		minDelay: relistenMinDelay,
	}
	d.listen = d.listenConn
	d.fetchKey = d.loadKey
	d.fetchAll = d.Load
	return d
}

func (d *PostgresDocument) Load(ctx context.Context) (Snapshot, error) {
	var raw []byte
	err := d.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE id = $1`, d.docID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, classify("load document", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	snap := make(Snapshot, len(doc))
	for k, v := range doc {
		if key := Key(k); key.Valid() {
			snap[key] = v
		}
	}
	return snap, nil
}

func (d *PostgresDocument) Save(ctx context.Context, key Key, value any) (Ack, error) {
	raw, err := encode(key, value)
	if err != nil {
		return Ack{}, err
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return Ack{}, classify("begin save", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO documents (id, data, updated_at)
		 VALUES ($1, jsonb_build_object($2::text, $3::jsonb), NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET data = documents.data || EXCLUDED.data,
		     updated_at = NOW()`,
		d.docID, string(key), string(raw),
	)
	if err != nil {
		return Ack{}, classify("save "+string(key), err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, documentChannel, string(key)); err != nil {
		return Ack{}, classify("notify "+string(key), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Ack{}, classify("commit "+string(key), err)
	}
	return Ack{Key: key, Mode: ModeCloud}, nil
}

// Subscribe pins one pooled connection to LISTEN for document changes and
// reloads each changed key before handing it to onChange. A lost connection
// is replaced with backoff, and the whole document is handed over once the
// new one listens so changes made in between are not missed.
func (d *PostgresDocument) Subscribe(ctx context.Context, onChange func(Snapshot)) (Unsubscribe, error) {
	l, err := d.listen(ctx)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		d.follow(subCtx, l, onChange)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (d *PostgresDocument) follow(ctx context.Context, l listener, onChange func(Snapshot)) {
	for {
		d.drain(ctx, l, onChange)
		l.close()
		if ctx.Err() != nil {
			return
		}

		if l = d.relisten(ctx); l == nil {
			return
		}
		snap, err := d.fetchAll(ctx)
		if err != nil {
			d.log.Warn().Err(err).Msg("Failed to reload document after reconnect")
			continue
		}
		onChange(snap)
	}
}

// drain delivers notifications until the listener fails or ctx ends.
func (d *PostgresDocument) drain(ctx context.Context, l listener, onChange func(Snapshot)) {
	for {
		payload, err := l.wait(ctx)
		if err != nil {
			if ctx.Err() == nil {
				d.log.Error().Err(err).Msg("Document listener lost")
			}
			return
		}

		key := Key(payload)
		if !key.Valid() {
			continue
		}

		raw, err := d.fetchKey(ctx, key)
		if err != nil {
			d.log.Warn().Err(err).Str("key", string(key)).Msg("Failed to reload changed key")
			continue
		}
		onChange(Snapshot{key: raw})
	}
}

// relisten retries until a new listener is up. It returns nil once ctx ends.
func (d *PostgresDocument) relisten(ctx context.Context) listener {
	delay := d.minDelay
	for {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}

		l, err := d.listen(ctx)
		if err == nil {
			d.log.Info().Msg("Document listener reconnected")
			return l
		}
		d.log.Warn().Err(err).Dur("retry_in", delay).Msg("Document listener reconnect failed")
		delay = min(delay*2, relistenMaxDelay)
	}
}

func (d *PostgresDocument) listenConn(ctx context.Context) (listener, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, classify("acquire listener", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{documentChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, classify("listen", err)
	}
	return &pgListener{conn: conn}, nil
}

type pgListener struct {
	conn *pgxpool.Conn
}

func (l *pgListener) wait(ctx context.Context) (string, error) {
	n, err := l.conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return n.Payload, nil
}

// close drops the connection; it is still LISTENing and must not go back to
// the pool.
func (l *pgListener) close() {
	raw := l.conn.Hijack()
	_ = raw.Close(context.Background())
}

func (d *PostgresDocument) loadKey(ctx context.Context, key Key) (json.RawMessage, error) {
	var raw []byte
	err := d.pool.QueryRow(ctx,
		`SELECT data -> $2 FROM documents WHERE id = $1`, d.docID, string(key),
	).Scan(&raw)
	if err != nil {
		return nil, classify("load "+string(key), err)
	}
	return raw, nil
}

// classify wraps connection-level failures with ErrUnavailable. Errors the
// server returned for a specific statement stay as they are.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
