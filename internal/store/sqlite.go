package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/qna-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS skills (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	tier       TEXT NOT NULL,
	categories TEXT NOT NULL DEFAULT '[]',
	tags       TEXT NOT NULL DEFAULT '[]',
	content    TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	sync_state TEXT NOT NULL DEFAULT 'unknown',
	source_id  TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS questionnaire_rows (
	id            TEXT PRIMARY KEY,
	project_id    TEXT NOT NULL,
	question      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	response      TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	used_skills   TEXT NOT NULL DEFAULT '[]',
	used_fallback INTEGER NOT NULL DEFAULT 0,
	confidence    TEXT NOT NULL DEFAULT '',
	sources       TEXT NOT NULL DEFAULT '',
	remarks       TEXT NOT NULL DEFAULT '',
	history       TEXT NOT NULL DEFAULT '[]',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_records (
	id            TEXT PRIMARY KEY,
	feature       TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sync_log (
	id           TEXT PRIMARY KEY,
	target_id    TEXT NOT NULL,
	operation    TEXT NOT NULL,
	direction    TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME,
	commit_ref   TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_skills_tier ON skills(tier);
CREATE INDEX IF NOT EXISTS idx_skills_source_id ON skills(source_id);
CREATE INDEX IF NOT EXISTS idx_rows_project ON questionnaire_rows(project_id);
CREATE INDEX IF NOT EXISTS idx_rows_status ON questionnaire_rows(status);
CREATE INDEX IF NOT EXISTS idx_sync_log_target ON sync_log(target_id);
CREATE INDEX IF NOT EXISTS idx_sync_log_started ON sync_log(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Skills ---

func (s *SQLiteStore) ListSkills(ctx context.Context, filter SkillFilter) ([]model.Skill, error) {
	query := `SELECT id, name, tier, categories, tags, content, active, sync_state, source_id, created_at, updated_at
	          FROM skills WHERE 1=1`
	var args []any

	if filter.ActiveOnly {
		query += ` AND active = 1`
	}
	if len(filter.Tiers) > 0 {
		query += ` AND tier IN (` + placeholders(len(filter.Tiers)) + `)`
		for _, t := range filter.Tiers {
			args = append(args, string(t))
		}
	}
	if len(filter.ExcludeIDs) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(filter.ExcludeIDs)) + `)`
		for _, id := range filter.ExcludeIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list skills")
	}
	defer rows.Close()

	var skills []model.Skill
	for rows.Next() {
		skill, err := scanSkillRow(rows)
		if err != nil {
			return nil, err
		}
		skills = append(skills, *skill)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list skills rows")
	}

	return filterCategories(skills, filter.Categories), nil
}

func (s *SQLiteStore) GetSkillBySource(ctx context.Context, sourceID string) (*model.Skill, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, tier, categories, tags, content, active, sync_state, source_id, created_at, updated_at
		 FROM skills WHERE source_id = ?`, sourceID)
	skill, err := scanSkillRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return skill, nil
}

func (s *SQLiteStore) UpsertSkill(ctx context.Context, skill *model.Skill) (bool, error) {
	now := time.Now().UTC()
	skill.UpdatedAt = now

	categories, tags, err := marshalSkillLists(skill)
	if err != nil {
		return false, err
	}

	if skill.ID != "" {
		res, err := s.db.ExecContext(ctx,
			`UPDATE skills SET name = ?, tier = ?, categories = ?, tags = ?, content = ?, active = ?, sync_state = ?, source_id = ?, updated_at = ?
			 WHERE id = ?`,
			skill.Name, string(skill.Tier), categories, tags, skill.Content, boolToInt(skill.Active),
			string(skill.SyncState), skill.SourceID, now, skill.ID,
		)
		if err != nil {
			return false, eris.Wrapf(err, "sqlite: update skill %s", skill.ID)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return false, nil
		}
		// Fall through to insert when the ID was supplied by the caller
		// but no row exists yet.
	} else {
		skill.ID = uuid.New().String()
	}

	skill.CreatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO skills (id, name, tier, categories, tags, content, active, sync_state, source_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		skill.ID, skill.Name, string(skill.Tier), categories, tags, skill.Content, boolToInt(skill.Active),
		string(skill.SyncState), skill.SourceID, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert skill %s", skill.ID)
	}
	return true, nil
}

func (s *SQLiteStore) SetSkillSyncState(ctx context.Context, skillID string, state model.SyncState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE skills SET sync_state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UTC(), skillID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set sync state %s", skillID)
	}
	return checkRowsAffected(res, "skill", skillID)
}

func (s *SQLiteStore) SkillSyncCounts(ctx context.Context) (map[model.SyncState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sync_state, COUNT(*) FROM skills GROUP BY sync_state`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sync counts")
	}
	defer rows.Close()

	counts := make(map[model.SyncState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync count")
		}
		counts[model.SyncState(state)] = n
	}
	return counts, rows.Err()
}

// --- Questionnaire rows ---

func (s *SQLiteStore) CreateRow(ctx context.Context, row *model.Row) error {
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.Status == "" {
		row.Status = model.RowStatusPending
	}
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now

	usedSkills, history, err := marshalRowLists(row)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questionnaire_rows (id, project_id, question, status, response, error, used_skills, used_fallback, confidence, sources, remarks, history, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.ProjectID, row.Question, string(row.Status), row.Response, row.Error,
		usedSkills, boolToInt(row.UsedFallback), row.Confidence, row.Sources, row.Remarks, history, now, now,
	)
	return eris.Wrapf(err, "sqlite: insert row %s", row.ID)
}

func (s *SQLiteStore) UpdateRow(ctx context.Context, row *model.Row) error {
	row.UpdatedAt = time.Now().UTC()

	usedSkills, history, err := marshalRowLists(row)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE questionnaire_rows
		 SET question = ?, status = ?, response = ?, error = ?, used_skills = ?, used_fallback = ?, confidence = ?, sources = ?, remarks = ?, history = ?, updated_at = ?
		 WHERE id = ?`,
		row.Question, string(row.Status), row.Response, row.Error, usedSkills, boolToInt(row.UsedFallback),
		row.Confidence, row.Sources, row.Remarks, history, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update row %s", row.ID)
	}
	return checkRowsAffected(res, "row", row.ID)
}

func (s *SQLiteStore) GetRow(ctx context.Context, rowID string) (*model.Row, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, question, status, response, error, used_skills, used_fallback, confidence, sources, remarks, history, created_at, updated_at
		 FROM questionnaire_rows WHERE id = ?`, rowID)
	r, err := scanRowRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListRows(ctx context.Context, projectID string) ([]model.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, question, status, response, error, used_skills, used_fallback, confidence, sources, remarks, history, created_at, updated_at
		 FROM questionnaire_rows WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rows")
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		r, err := scanRowRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// --- Settings ---

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", eris.Wrapf(err, "sqlite: get setting %s", key)
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return eris.Wrapf(err, "sqlite: set setting %s", key)
}

// --- Usage ---

func (s *SQLiteStore) RecordUsage(ctx context.Context, rec model.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	metadata, err := json.Marshal(orEmptyMap(rec.Metadata))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal usage metadata")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, feature, model, input_tokens, output_tokens, user_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Feature, rec.Model, rec.InputTokens, rec.OutputTokens, rec.UserID, string(metadata), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: insert usage record")
}

// --- Sync log ---

func (s *SQLiteStore) CreateSyncLog(ctx context.Context, entry *model.SyncLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.Status = model.SyncLogPending
	entry.StartedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (id, target_id, operation, direction, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TargetID, string(entry.Operation), string(entry.Direction), string(entry.Status), entry.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: insert sync log %s", entry.ID)
}

func (s *SQLiteStore) CompleteSyncLog(ctx context.Context, logID string, status model.SyncLogStatus, commitRef, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, commit_ref = ?, error = ?
		 WHERE id = ? AND status = 'pending'`,
		string(status), time.Now().UTC(), commitRef, errMsg, logID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sync log %s", logID)
	}
	return checkRowsAffected(res, "sync log", logID)
}

func (s *SQLiteStore) CountSyncFailuresSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_log WHERE status = 'failed' AND started_at >= ?`, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: count sync failures")
	}
	return n, nil
}

func (s *SQLiteStore) ListSyncLogs(ctx context.Context, limit int) ([]model.SyncLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_id, operation, direction, status, started_at, completed_at, commit_ref, error
		 FROM sync_log ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sync logs")
	}
	defer rows.Close()

	var out []model.SyncLog
	for rows.Next() {
		var e model.SyncLog
		var op, dir, status string
		var completedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.TargetID, &op, &dir, &status, &e.StartedAt, &completedAt, &e.CommitRef, &e.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync log")
		}
		e.Operation = model.SyncOperation(op)
		e.Direction = model.SyncDirection(dir)
		e.Status = model.SyncLogStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSkillRow(r rowScanner) (*model.Skill, error) {
	var s model.Skill
	var tier, syncState, categories, tags string
	var active int
	var sourceID sql.NullString
	if err := r.Scan(&s.ID, &s.Name, &tier, &categories, &tags, &s.Content, &active, &syncState, &sourceID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan skill")
	}
	s.Tier = model.Tier(tier)
	s.SyncState = model.SyncState(syncState)
	s.Active = active != 0
	s.SourceID = sourceID.String
	if err := json.Unmarshal([]byte(categories), &s.Categories); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal categories")
	}
	if err := json.Unmarshal([]byte(tags), &s.Tags); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal tags")
	}
	return &s, nil
}

func scanRowRecord(r rowScanner) (*model.Row, error) {
	var row model.Row
	var status, usedSkills, history string
	var usedFallback int
	if err := r.Scan(&row.ID, &row.ProjectID, &row.Question, &status, &row.Response, &row.Error,
		&usedSkills, &usedFallback, &row.Confidence, &row.Sources, &row.Remarks, &history,
		&row.CreatedAt, &row.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan row")
	}
	row.Status = model.RowStatus(status)
	row.UsedFallback = usedFallback != 0
	if err := json.Unmarshal([]byte(usedSkills), &row.UsedSkills); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal used skills")
	}
	if err := json.Unmarshal([]byte(history), &row.History); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal history")
	}
	return &row, nil
}

func marshalSkillLists(skill *model.Skill) (categories, tags string, err error) {
	c, err := json.Marshal(orEmptySlice(skill.Categories))
	if err != nil {
		return "", "", eris.Wrap(err, "sqlite: marshal categories")
	}
	t, err := json.Marshal(orEmptySlice(skill.Tags))
	if err != nil {
		return "", "", eris.Wrap(err, "sqlite: marshal tags")
	}
	return string(c), string(t), nil
}

func marshalRowLists(row *model.Row) (usedSkills, history string, err error) {
	u, err := json.Marshal(orEmptySlice(row.UsedSkills))
	if err != nil {
		return "", "", eris.Wrap(err, "sqlite: marshal used skills")
	}
	h, err := json.Marshal(orEmptyMessages(row.History))
	if err != nil {
		return "", "", eris.Wrap(err, "sqlite: marshal history")
	}
	return string(u), string(h), nil
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyMessages(m []model.Message) []model.Message {
	if m == nil {
		return []model.Message{}
	}
	return m
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
