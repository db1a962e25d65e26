package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/qna-cli/internal/db"
	"github.com/sells-group/qna-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS skills (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	tier       TEXT NOT NULL,
	categories JSONB NOT NULL DEFAULT '[]',
	tags       JSONB NOT NULL DEFAULT '[]',
	content    TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT true,
	sync_state TEXT NOT NULL DEFAULT 'unknown',
	source_id  TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS questionnaire_rows (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project_id    TEXT NOT NULL,
	question      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	response      TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	used_skills   JSONB NOT NULL DEFAULT '[]',
	used_fallback BOOLEAN NOT NULL DEFAULT false,
	confidence    TEXT NOT NULL DEFAULT '',
	sources       TEXT NOT NULL DEFAULT '',
	remarks       TEXT NOT NULL DEFAULT '',
	history       JSONB NOT NULL DEFAULT '[]',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_records (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	feature       TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  BIGINT NOT NULL,
	output_tokens BIGINT NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	metadata      JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sync_log (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	target_id    TEXT NOT NULL,
	operation    TEXT NOT NULL,
	direction    TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
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

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Skills ---

const skillColumns = `id, name, tier, categories, tags, content, active, sync_state, COALESCE(source_id, ''), created_at, updated_at`

func (s *PostgresStore) ListSkills(ctx context.Context, filter SkillFilter) ([]model.Skill, error) {
	query := `SELECT ` + skillColumns + ` FROM skills WHERE 1=1`
	var args []any

	if filter.ActiveOnly {
		query += ` AND active`
	}
	if len(filter.Tiers) > 0 {
		tiers := make([]string, len(filter.Tiers))
		for i, t := range filter.Tiers {
			tiers[i] = string(t)
		}
		args = append(args, tiers)
		query += ` AND tier = ANY($1)`
	}
	if len(filter.ExcludeIDs) > 0 {
		args = append(args, filter.ExcludeIDs)
		if len(args) == 1 {
			query += ` AND NOT (id = ANY($1))`
		} else {
			query += ` AND NOT (id = ANY($2))`
		}
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list skills")
	}
	defer rows.Close()

	var skills []model.Skill
	for rows.Next() {
		skill, err := scanPgSkill(rows)
		if err != nil {
			return nil, err
		}
		skills = append(skills, *skill)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list skills rows")
	}

	return filterCategories(skills, filter.Categories), nil
}

func (s *PostgresStore) GetSkillBySource(ctx context.Context, sourceID string) (*model.Skill, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+skillColumns+` FROM skills WHERE source_id = $1`, sourceID)
	skill, err := scanPgSkill(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return skill, nil
}

func (s *PostgresStore) UpsertSkill(ctx context.Context, skill *model.Skill) (bool, error) {
	now := time.Now().UTC()
	skill.UpdatedAt = now

	categories, err := json.Marshal(orEmptySlice(skill.Categories))
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal categories")
	}
	tags, err := json.Marshal(orEmptySlice(skill.Tags))
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal tags")
	}

	if skill.ID != "" {
		tag, err := s.pool.Exec(ctx,
			`UPDATE skills SET name = $1, tier = $2, categories = $3, tags = $4, content = $5, active = $6, sync_state = $7, source_id = $8, updated_at = $9
			 WHERE id = $10`,
			skill.Name, string(skill.Tier), categories, tags, skill.Content, skill.Active,
			string(skill.SyncState), nullIfEmpty(skill.SourceID), now, skill.ID,
		)
		if err != nil {
			return false, eris.Wrapf(err, "postgres: update skill %s", skill.ID)
		}
		if tag.RowsAffected() > 0 {
			return false, nil
		}
	} else {
		skill.ID = uuid.New().String()
	}

	skill.CreatedAt = now
	_, err = s.pool.Exec(ctx,
		`INSERT INTO skills (id, name, tier, categories, tags, content, active, sync_state, source_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		skill.ID, skill.Name, string(skill.Tier), categories, tags, skill.Content, skill.Active,
		string(skill.SyncState), nullIfEmpty(skill.SourceID), now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert skill %s", skill.ID)
	}
	return true, nil
}

func (s *PostgresStore) SetSkillSyncState(ctx context.Context, skillID string, state model.SyncState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE skills SET sync_state = $1, updated_at = now() WHERE id = $2`,
		string(state), skillID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set sync state %s", skillID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SkillSyncCounts(ctx context.Context) (map[model.SyncState]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT sync_state, COUNT(*) FROM skills GROUP BY sync_state`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: sync counts")
	}
	defer rows.Close()

	counts := make(map[model.SyncState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync count")
		}
		counts[model.SyncState(state)] = n
	}
	return counts, rows.Err()
}

// --- Questionnaire rows ---

const rowColumns = `id, project_id, question, status, response, error, used_skills, used_fallback, confidence, sources, remarks, history, created_at, updated_at`

func (s *PostgresStore) CreateRow(ctx context.Context, row *model.Row) error {
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.Status == "" {
		row.Status = model.RowStatusPending
	}
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now

	usedSkills, history, err := marshalPgRowLists(row)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO questionnaire_rows (`+rowColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		row.ID, row.ProjectID, row.Question, string(row.Status), row.Response, row.Error,
		usedSkills, row.UsedFallback, row.Confidence, row.Sources, row.Remarks, history, now, now,
	)
	return eris.Wrapf(err, "postgres: insert row %s", row.ID)
}

func (s *PostgresStore) UpdateRow(ctx context.Context, row *model.Row) error {
	row.UpdatedAt = time.Now().UTC()

	usedSkills, history, err := marshalPgRowLists(row)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE questionnaire_rows
		 SET question = $1, status = $2, response = $3, error = $4, used_skills = $5, used_fallback = $6, confidence = $7, sources = $8, remarks = $9, history = $10, updated_at = $11
		 WHERE id = $12`,
		row.Question, string(row.Status), row.Response, row.Error, usedSkills, row.UsedFallback,
		row.Confidence, row.Sources, row.Remarks, history, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update row %s", row.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetRow(ctx context.Context, rowID string) (*model.Row, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+rowColumns+` FROM questionnaire_rows WHERE id = $1`, rowID)
	r, err := scanPgRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ListRows(ctx context.Context, projectID string) ([]model.Row, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rowColumns+` FROM questionnaire_rows WHERE project_id = $1 ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rows")
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		r, err := scanPgRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// --- Settings ---

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", eris.Wrapf(err, "postgres: get setting %s", key)
	}
	return value, nil
}

func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	return eris.Wrapf(err, "postgres: set setting %s", key)
}

// --- Usage ---

func (s *PostgresStore) RecordUsage(ctx context.Context, rec model.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	metadata, err := json.Marshal(orEmptyMap(rec.Metadata))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal usage metadata")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO usage_records (id, feature, model, input_tokens, output_tokens, user_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		rec.ID, rec.Feature, rec.Model, rec.InputTokens, rec.OutputTokens, rec.UserID, metadata,
	)
	return eris.Wrap(err, "postgres: insert usage record")
}

// --- Sync log ---

func (s *PostgresStore) CreateSyncLog(ctx context.Context, entry *model.SyncLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.Status = model.SyncLogPending
	entry.StartedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_log (id, target_id, operation, direction, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.TargetID, string(entry.Operation), string(entry.Direction), string(entry.Status), entry.StartedAt,
	)
	return eris.Wrapf(err, "postgres: insert sync log %s", entry.ID)
}

func (s *PostgresStore) CompleteSyncLog(ctx context.Context, logID string, status model.SyncLogStatus, commitRef, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = $1, completed_at = now(), commit_ref = $2, error = $3
		 WHERE id = $4 AND status = 'pending'`,
		string(status), commitRef, errMsg, logID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete sync log %s", logID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountSyncFailuresSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sync_log WHERE status = 'failed' AND started_at >= $1`, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: count sync failures")
	}
	return n, nil
}

func (s *PostgresStore) ListSyncLogs(ctx context.Context, limit int) ([]model.SyncLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, target_id, operation, direction, status, started_at, completed_at, commit_ref, error
		 FROM sync_log ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sync logs")
	}
	defer rows.Close()

	var out []model.SyncLog
	for rows.Next() {
		var e model.SyncLog
		var op, dir, status string
		var completedAt *time.Time
		if err := rows.Scan(&e.ID, &e.TargetID, &op, &dir, &status, &e.StartedAt, &completedAt, &e.CommitRef, &e.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync log")
		}
		e.Operation = model.SyncOperation(op)
		e.Direction = model.SyncDirection(dir)
		e.Status = model.SyncLogStatus(status)
		e.CompletedAt = completedAt
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- scan helpers ---

func scanPgSkill(r pgx.Row) (*model.Skill, error) {
	var s model.Skill
	var tier, syncState string
	var categories, tags []byte
	if err := r.Scan(&s.ID, &s.Name, &tier, &categories, &tags, &s.Content, &s.Active, &syncState, &s.SourceID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan skill")
	}
	s.Tier = model.Tier(tier)
	s.SyncState = model.SyncState(syncState)
	if err := json.Unmarshal(categories, &s.Categories); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal categories")
	}
	if err := json.Unmarshal(tags, &s.Tags); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal tags")
	}
	return &s, nil
}

func scanPgRow(r pgx.Row) (*model.Row, error) {
	var row model.Row
	var status string
	var usedSkills, history []byte
	if err := r.Scan(&row.ID, &row.ProjectID, &row.Question, &status, &row.Response, &row.Error,
		&usedSkills, &row.UsedFallback, &row.Confidence, &row.Sources, &row.Remarks, &history,
		&row.CreatedAt, &row.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan row")
	}
	row.Status = model.RowStatus(status)
	if err := json.Unmarshal(usedSkills, &row.UsedSkills); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal used skills")
	}
	if err := json.Unmarshal(history, &row.History); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal history")
	}
	return &row, nil
}

func marshalPgRowLists(row *model.Row) (usedSkills, history []byte, err error) {
	usedSkills, err = json.Marshal(orEmptySlice(row.UsedSkills))
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgres: marshal used skills")
	}
	history, err = json.Marshal(orEmptyMessages(row.History))
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgres: marshal history")
	}
	return usedSkills, history, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
