package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"worldevents/internal/event"
	logx "worldevents/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateEvent(ctx context.Context, ev event.ScheduledEvent) error {
	anchor, err := marshalNullable(ev.Anchor)
	if err != nil {
		return err
	}
	rewards, err := marshalNullable(ev.BaseRewards)
	if err != nil {
		return err
	}
	parts, err := marshalNullable(ev.Participants)
	if err != nil {
		return err
	}
	meta, err := marshalNullable(ev.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events(id, type, scope, state, start_time, end_time, duration_ms,
		                    anchor, recurrence, base_rewards, participants, metadata, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, string(ev.Type), string(ev.Scope), string(ev.State),
		ev.StartTime.UTC().Format(time.RFC3339Nano), ev.EndTime.UTC().Format(time.RFC3339Nano),
		ev.Duration.Milliseconds(),
		anchor, ev.Recurrence, rewards, parts, meta,
		ev.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("%w: %s", ErrExists, ev.ID)
	}
	return err
}

func (s *sqliteStore) GetEvent(ctx context.Context, id string) (event.ScheduledEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.ScheduledEvent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ev, err
}

func (s *sqliteStore) UpdateEvent(ctx context.Context, id string, u Update) error {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if u.State != nil {
		sets = append(sets, "state = ?")
		args = append(args, string(*u.State))
	}
	if u.Participants != nil {
		b, err := json.Marshal(u.Participants)
		if err != nil {
			return err
		}
		sets = append(sets, "participants = ?")
		args = append(args, string(b))
	}
	if u.Metadata != nil {
		b, err := json.Marshal(u.Metadata)
		if err != nil {
			return err
		}
		sets = append(sets, "metadata = ?")
		args = append(args, string(b))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE events SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *sqliteStore) ListEvents(ctx context.Context, f Filter) ([]event.ScheduledEvent, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if len(f.States) > 0 {
		ph := make([]string, len(f.States))
		for i, st := range f.States {
			ph[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "state IN ("+strings.Join(ph, ",")+")")
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, string(f.Scope))
	}
	if !f.EndedAfter.IsZero() {
		where = append(where, "end_time > ?")
		args = append(args, f.EndedAfter.UTC().Format(time.RFC3339Nano))
	}

	q := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY start_time, id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.ScheduledEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

const eventColumns = `id, type, scope, state, start_time, end_time, duration_ms,
	anchor, recurrence, base_rewards, participants, metadata, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (event.ScheduledEvent, error) {
	var (
		ev                event.ScheduledEvent
		typ, scope, state string
		startRaw, endRaw  string
		durMS             int64
		anchor, rewards   sql.NullString
		parts, meta       sql.NullString
		createdRaw        string
	)
	err := r.Scan(&ev.ID, &typ, &scope, &state, &startRaw, &endRaw, &durMS,
		&anchor, &ev.Recurrence, &rewards, &parts, &meta, &createdRaw)
	if err != nil {
		return event.ScheduledEvent{}, err
	}
	ev.Type = event.Type(typ)
	ev.Scope = event.Scope(scope)
	ev.State = event.State(state)
	ev.Duration = time.Duration(durMS) * time.Millisecond
	if ev.StartTime, err = time.Parse(time.RFC3339Nano, startRaw); err != nil {
		return event.ScheduledEvent{}, fmt.Errorf("bad start_time for %s: %w", ev.ID, err)
	}
	if ev.EndTime, err = time.Parse(time.RFC3339Nano, endRaw); err != nil {
		return event.ScheduledEvent{}, fmt.Errorf("bad end_time for %s: %w", ev.ID, err)
	}
	if ev.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw); err != nil {
		return event.ScheduledEvent{}, fmt.Errorf("bad created_at for %s: %w", ev.ID, err)
	}
	if err := unmarshalNullable(anchor, &ev.Anchor); err != nil {
		return event.ScheduledEvent{}, err
	}
	if err := unmarshalNullable(rewards, &ev.BaseRewards); err != nil {
		return event.ScheduledEvent{}, err
	}
	if err := unmarshalNullable(parts, &ev.Participants); err != nil {
		return event.ScheduledEvent{}, err
	}
	if err := unmarshalNullable(meta, &ev.Metadata); err != nil {
		return event.ScheduledEvent{}, err
	}
	return ev, nil
}

func marshalNullable(v any) (sql.NullString, error) {
	if isNilish(v) {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalNullable(s sql.NullString, dst any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

func isNilish(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *event.Anchor:
		return x == nil
	case event.Rewards:
		return x == nil
	case []event.Participant:
		return x == nil
	case map[string]string:
		return x == nil
	default:
		return false
	}
}
