package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const sqliteSchemaV1 = `
CREATE TABLE IF NOT EXISTS agents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    config TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS contexts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    parent_id INTEGER REFERENCES contexts(id) ON DELETE CASCADE,
    branch_msg_id INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    leaf_id INTEGER NOT NULL DEFAULT 0,
    created_at_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS contexts_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    context_id INTEGER NOT NULL REFERENCES contexts(id) ON DELETE CASCADE,
    member_id INTEGER NOT NULL DEFAULT 0,
    role TEXT NOT NULL,
    msg TEXT NOT NULL,
    log TEXT NOT NULL DEFAULT '',
    timestamp_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS contexts_messages_context_id ON contexts_messages(context_id);

CREATE TABLE IF NOT EXISTS contexts_members (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    context_id INTEGER NOT NULL REFERENCES contexts(id) ON DELETE CASCADE,
    agent_id INTEGER NOT NULL DEFAULT 0,
    agent_config TEXT NOT NULL DEFAULT '{}',
    ordr INTEGER NOT NULL DEFAULT 0,
    del INTEGER NOT NULL DEFAULT 0
);

-- input_member_id 0 is the user
CREATE TABLE IF NOT EXISTS contexts_members_inputs (
    member_id INTEGER NOT NULL REFERENCES contexts_members(id) ON DELETE CASCADE,
    input_member_id INTEGER NOT NULL DEFAULT 0,
    type INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (member_id, input_member_id)
);

CREATE TABLE IF NOT EXISTS settings (
    field TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS blocks (
    name TEXT PRIMARY KEY,
    text TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    timestamp_ms INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteDSNForFile builds a DSN with WAL, a busy timeout and foreign keys enabled.
func SQLiteDSNForFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("sqlite store: empty file path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "could not open sqlite database")
	}
	// one connection keeps PRAGMAs and in-memory databases consistent
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func OpenSQLiteFile(path string) (*SQLiteStore, error) {
	dsn, err := SQLiteDSNForFile(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(dsn)
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return errors.Wrap(err, "sqlite store: enable foreign keys")
	}
	if _, err := s.db.Exec(sqliteSchemaV1); err != nil {
		return errors.Wrap(err, "sqlite store: migrate schema")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) ensureOpen() error {
	if s.closed {
		return errors.New("sqlite store is closed")
	}
	return nil
}

func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(conversation.ErrNotFound, "%s %v", what, id)
	}
	return errors.Wrapf(err, "could not load %s %v", what, id)
}

func (s *SQLiteStore) CreateContext(ctx context.Context, node *conversation.ContextNode) (*conversation.ContextNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	ret := *node
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contexts (parent_id, branch_msg_id, active, leaf_id, created_at_ms) VALUES (?, ?, ?, ?, ?)`,
		nullableID(ret.ParentID), ret.BranchMsgID, ret.Active, ret.LeafID, ret.CreatedAt.UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "could not insert context")
	}
	ret.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

const contextColumns = `c.id, COALESCE(c.parent_id, 0), c.branch_msg_id, c.active, c.leaf_id, c.created_at_ms`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContext(row rowScanner) (*conversation.ContextNode, error) {
	var (
		c         conversation.ContextNode
		createdAt int64
	)
	if err := row.Scan(&c.ID, &c.ParentID, &c.BranchMsgID, &c.Active, &c.LeafID, &createdAt); err != nil {
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(createdAt)
	return &c, nil
}

func (s *SQLiteStore) GetContext(ctx context.Context, id int64) (*conversation.ContextNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	c, err := scanContext(s.db.QueryRowContext(ctx, `SELECT `+contextColumns+` FROM contexts c WHERE c.id = ?`, id))
	if err != nil {
		return nil, notFound(err, "context", id)
	}
	return c, nil
}

func (s *SQLiteStore) queryContexts(ctx context.Context, query string, args ...interface{}) ([]*conversation.ContextNode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "could not query contexts")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []*conversation.ContextNode
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, errors.Wrap(err, "could not scan context")
		}
		ret = append(ret, c)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) ListContexts(ctx context.Context, rootID int64) ([]*conversation.ContextNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	ret, err := s.queryContexts(ctx, `
WITH RECURSIVE tree(id) AS (
    SELECT id FROM contexts WHERE id = ?
    UNION ALL
    SELECT c.id FROM contexts c JOIN tree t ON c.parent_id = t.id
)
SELECT `+contextColumns+` FROM contexts c JOIN tree t ON c.id = t.id ORDER BY c.id`, rootID)
	if err != nil {
		return nil, err
	}
	if len(ret) == 0 {
		return nil, errors.Wrapf(conversation.ErrNotFound, "context %d", rootID)
	}
	return ret, nil
}

func (s *SQLiteStore) ListRootContexts(ctx context.Context) ([]*conversation.ContextNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.queryContexts(ctx, `SELECT `+contextColumns+` FROM contexts c WHERE c.parent_id IS NULL ORDER BY c.id`)
}

func (s *SQLiteStore) execOne(ctx context.Context, what string, id int64, query string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "could not update %s %d", what, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(conversation.ErrNotFound, "%s %d", what, id)
	}
	return nil
}

func (s *SQLiteStore) SetContextActive(ctx context.Context, id int64, active bool) error {
	return s.execOne(ctx, "context", id, `UPDATE contexts SET active = ? WHERE id = ?`, active, id)
}

func (s *SQLiteStore) SetLeaf(ctx context.Context, rootID int64, leafID int64) error {
	return s.execOne(ctx, "context", rootID, `UPDATE contexts SET leaf_id = ? WHERE id = ?`, leafID, rootID)
}

func (s *SQLiteStore) DeleteContextTree(ctx context.Context, rootID int64, keepRoot bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM contexts WHERE id = ?`, rootID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return errors.Wrapf(conversation.ErrNotFound, "context %d", rootID)
	}

	// children cascade to their own messages and descendants
	stmts := []string{
		`DELETE FROM contexts WHERE parent_id = ?`,
		`DELETE FROM contexts_messages WHERE context_id = ?`,
	}
	if keepRoot {
		stmts = append(stmts, `UPDATE contexts SET leaf_id = 0 WHERE id = ?`)
	} else {
		stmts = append(stmts, `DELETE FROM contexts WHERE id = ?`)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, rootID); err != nil {
			return errors.Wrap(err, "could not delete context tree")
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, m *conversation.Message) (*conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	ret := *m
	if ret.Timestamp.IsZero() {
		ret.Timestamp = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contexts_messages (context_id, member_id, role, msg, log, timestamp_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		ret.ContextID, ret.MemberID, string(ret.Role), ret.Content, ret.Log, ret.Timestamp.UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "could not insert message")
	}
	ret.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

const messageColumns = `id, context_id, member_id, role, msg, log, timestamp_ms`

func scanMessage(row rowScanner) (*conversation.Message, error) {
	var (
		m    conversation.Message
		role string
		ts   int64
	)
	if err := row.Scan(&m.ID, &m.ContextID, &m.MemberID, &role, &m.Content, &m.Log, &ts); err != nil {
		return nil, err
	}
	m.Role = conversation.Role(role)
	m.Timestamp = time.UnixMilli(ts)
	return &m, nil
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	m, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM contexts_messages WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "message", id)
	}
	return m, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, contextIDs []int64) ([]*conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if len(contextIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(contextIDs)), ",")
	args := make([]interface{}, 0, len(contextIDs))
	for _, id := range contextIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM contexts_messages WHERE context_id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "could not query messages")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []*conversation.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "could not scan message")
		}
		ret = append(ret, m)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) CreateAgent(ctx context.Context, a *Agent) (*Agent, error) {
	cfg, err := a.Config.JSON()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO agents (name, description, config) VALUES (?, ?, ?)`, a.Name, a.Desc, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "could not insert agent")
	}
	ret := *a
	ret.Config = a.Config.Clone()
	ret.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func scanAgent(row rowScanner) (*Agent, error) {
	var (
		a   Agent
		cfg string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Desc, &cfg); err != nil {
		return nil, err
	}
	overlay, err := config.ParseOverlay(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "agent %d", a.ID)
	}
	a.Config = overlay
	return &a, nil
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	a, err := scanAgent(s.db.QueryRowContext(ctx, `SELECT id, name, description, config FROM agents WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "agent", id)
	}
	return a, nil
}

func (s *SQLiteStore) GetAgentByName(ctx context.Context, name string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	a, err := scanAgent(s.db.QueryRowContext(ctx,
		`SELECT id, name, description, config FROM agents WHERE name = ? ORDER BY id LIMIT 1`, name))
	if err != nil {
		return nil, notFound(err, "agent", name)
	}
	return a, nil
}

func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, config FROM agents ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "could not query agents")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, a)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) UpdateAgentConfig(ctx context.Context, id int64, overlay config.Overlay) error {
	cfg, err := overlay.JSON()
	if err != nil {
		return err
	}
	return s.execOne(ctx, "agent", id, `UPDATE agents SET config = ? WHERE id = ?`, cfg, id)
}

func (s *SQLiteStore) AddMember(ctx context.Context, m *Member) (*Member, error) {
	cfg, err := m.Config.JSON()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contexts_members (context_id, agent_id, agent_config, ordr) VALUES (?, ?, ?, ?)`,
		m.ContextID, m.AgentID, cfg, m.Position)
	if err != nil {
		return nil, errors.Wrap(err, "could not insert member")
	}
	ret := *m
	ret.Config = m.Config.Clone()
	ret.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func (s *SQLiteStore) ListMembers(ctx context.Context, contextID int64) ([]*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, context_id, agent_id, agent_config, ordr FROM contexts_members WHERE context_id = ? AND del = 0 ORDER BY ordr, id`,
		contextID)
	if err != nil {
		return nil, errors.Wrap(err, "could not query members")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []*Member
	for rows.Next() {
		var (
			m   Member
			cfg string
		)
		if err := rows.Scan(&m.ID, &m.ContextID, &m.AgentID, &cfg, &m.Position); err != nil {
			return nil, errors.Wrap(err, "could not scan member")
		}
		m.Config, err = config.ParseOverlay(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "member %d", m.ID)
		}
		ret = append(ret, &m)
	}
	return ret, rows.Err()
}

// SetMemberConfigValue updates one key of the member overlay with json_set,
// leaving concurrent changes to other keys untouched.
func (s *SQLiteStore) SetMemberConfigValue(ctx context.Context, memberID int64, key string, value interface{}) error {
	if key == "" || strings.ContainsAny(key, `"\`) {
		return errors.Errorf("invalid config key %q", key)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "could not serialize config value")
	}

	log.Trace().Int64("member_id", memberID).Str("key", key).RawJSON("value", b).Msg("set member config value")

	return s.execOne(ctx, "member", memberID,
		`UPDATE contexts_members SET agent_config = json_set(agent_config, ?, json(?)) WHERE id = ?`,
		fmt.Sprintf(`$."%s"`, key), string(b), memberID)
}

func (s *SQLiteStore) CopyMembers(ctx context.Context, fromContextID int64, toContextID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, agent_id, agent_config, ordr FROM contexts_members WHERE context_id = ? AND del = 0 ORDER BY ordr, id`,
		fromContextID)
	if err != nil {
		return errors.Wrap(err, "could not query members")
	}
	type source struct {
		id, agentID int64
		cfg         string
		ordr        int
	}
	var sources []source
	for rows.Next() {
		var src source
		if err := rows.Scan(&src.id, &src.agentID, &src.cfg, &src.ordr); err != nil {
			_ = rows.Close()
			return errors.Wrap(err, "could not scan member")
		}
		sources = append(sources, src)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	ids := map[int64]int64{UserInput: UserInput}
	for _, src := range sources {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO contexts_members (context_id, agent_id, agent_config, ordr) VALUES (?, ?, ?, ?)`,
			toContextID, src.agentID, src.cfg, src.ordr)
		if err != nil {
			return errors.Wrap(err, "could not copy members")
		}
		if ids[src.id], err = res.LastInsertId(); err != nil {
			return err
		}
	}

	inputs, err := queryMemberInputs(ctx, tx, fromContextID)
	if err != nil {
		return err
	}
	for _, in := range inputs {
		inputID, ok := ids[in.InputMemberID]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contexts_members_inputs (member_id, input_member_id, type) VALUES (?, ?, ?)`,
			ids[in.MemberID], inputID, int(in.Type)); err != nil {
			return errors.Wrap(err, "could not copy member inputs")
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) RemoveMember(ctx context.Context, memberID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `UPDATE contexts_members SET del = 1 WHERE id = ? AND del = 0`, memberID)
	if err != nil {
		return errors.Wrapf(err, "could not remove member %d", memberID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(conversation.ErrNotFound, "member %d", memberID)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contexts_members_inputs WHERE member_id = ? OR input_member_id = ?`, memberID, memberID); err != nil {
		return errors.Wrapf(err, "could not remove inputs of member %d", memberID)
	}
	return tx.Commit()
}

func (s *SQLiteStore) SetMemberInput(ctx context.Context, in *MemberInput) error {
	if in.MemberID == in.InputMemberID {
		return errors.Wrapf(ErrSelfInput, "member %d", in.MemberID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	var live int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contexts_members WHERE id = ? AND del = 0`, in.MemberID).Scan(&live); err != nil {
		return err
	}
	if live == 0 {
		return errors.Wrapf(conversation.ErrNotFound, "member %d", in.MemberID)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO contexts_members_inputs (member_id, input_member_id, type) VALUES (?, ?, ?)
ON CONFLICT(member_id, input_member_id) DO UPDATE SET type = excluded.type`,
		in.MemberID, in.InputMemberID, int(in.Type))
	return errors.Wrapf(err, "could not save input %d of member %d", in.InputMemberID, in.MemberID)
}

func (s *SQLiteStore) RemoveMemberInput(ctx context.Context, memberID int64, inputMemberID int64) error {
	return s.execOne(ctx, "member input", inputMemberID,
		`DELETE FROM contexts_members_inputs WHERE member_id = ? AND input_member_id = ?`, memberID, inputMemberID)
}

func (s *SQLiteStore) ListMemberInputs(ctx context.Context, contextID int64) ([]*MemberInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return queryMemberInputs(ctx, s.db, contextID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func queryMemberInputs(ctx context.Context, q queryer, contextID int64) ([]*MemberInput, error) {
	rows, err := q.QueryContext(ctx, `
SELECT i.member_id, i.input_member_id, i.type
FROM contexts_members_inputs i JOIN contexts_members m ON m.id = i.member_id
WHERE m.context_id = ? AND m.del = 0
ORDER BY i.member_id, i.input_member_id`, contextID)
	if err != nil {
		return nil, errors.Wrap(err, "could not query member inputs")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []*MemberInput
	for rows.Next() {
		var (
			in  MemberInput
			typ int
		)
		if err := rows.Scan(&in.MemberID, &in.InputMemberID, &typ); err != nil {
			return nil, errors.Wrap(err, "could not scan member input")
		}
		in.Type = InputType(typ)
		ret = append(ret, &in)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) GetSetting(ctx context.Context, field string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return "", false, err
	}

	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE field = ?`, field).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "could not load setting %s", field)
	}
	return v, true, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, field string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (field, value) VALUES (?, ?) ON CONFLICT(field) DO UPDATE SET value = excluded.value`,
		field, value)
	return errors.Wrapf(err, "could not save setting %s", field)
}

func (s *SQLiteStore) ListBlocks(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, text FROM blocks`)
	if err != nil {
		return nil, errors.Wrap(err, "could not query blocks")
	}
	defer func() {
		_ = rows.Close()
	}()

	ret := map[string]string{}
	for rows.Next() {
		var name, text string
		if err := rows.Scan(&name, &text); err != nil {
			return nil, err
		}
		ret[name] = text
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) SetBlock(ctx context.Context, name string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blocks (name, text) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET text = excluded.text`,
		name, text)
	return errors.Wrapf(err, "could not save block %s", name)
}

func (s *SQLiteStore) DeleteBlock(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE name = ?`, name)
	if err != nil {
		return errors.Wrapf(err, "could not delete block %s", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(conversation.ErrNotFound, "block %s", name)
	}
	return nil
}

func (s *SQLiteStore) InsertLog(ctx context.Context, kind string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (type, message, timestamp_ms) VALUES (?, ?, ?)`,
		kind, message, time.Now().UnixMilli())
	return errors.Wrap(err, "could not insert log")
}

func (s *SQLiteStore) ListLogs(ctx context.Context, kind string) ([]*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, message, timestamp_ms FROM logs WHERE ? = '' OR type = ? ORDER BY id`, kind, kind)
	if err != nil {
		return nil, errors.Wrap(err, "could not query logs")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []*LogEntry
	for rows.Next() {
		var (
			l  LogEntry
			ts int64
		)
		if err := rows.Scan(&l.ID, &l.Kind, &l.Message, &ts); err != nil {
			return nil, err
		}
		l.Timestamp = time.UnixMilli(ts)
		ret = append(ret, &l)
	}
	return ret, rows.Err()
}
