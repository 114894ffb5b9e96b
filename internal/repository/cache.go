package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheRepository is the hash-keyed persistent store of per-classifier
// outputs. Caches are global, not per guild: identical bytes recur across
// unrelated tenants and each classifier only ever runs once per
// fingerprint. Every write is an upsert so that two scans racing on the
// same new fingerprint are harmless.
type CacheRepository interface {
	GetOCR(ctx context.Context, hash string) (string, bool, error)
	PutOCR(ctx context.Context, hash, text string) error
	GetBasic(ctx context.Context, hash string) ([]byte, bool, error)
	PutBasic(ctx context.Context, hash string, result []byte) error
	GetLabel(ctx context.Context, hash string) ([]byte, bool, error)
	PutLabel(ctx context.Context, hash string, result []byte) error
	GetModelScores(ctx context.Context, hash string, modelNames []string) (map[string][]byte, error)
	PutModelScore(ctx context.Context, hash, model string, result []byte) error
}

type cacheRepository struct {
	db     *sqlx.DB
	rdb    *redis.Client
	logger *zap.Logger
}

// redisTTL bounds the hot-layer copies; Postgres remains the durable store.
const redisTTL = 24 * time.Hour

// NewCacheRepository builds the cache store. rdb may be nil, in which case
// the hot layer is skipped and every read goes to Postgres.
func NewCacheRepository(db *sqlx.DB, rdb *redis.Client, logger *zap.Logger) CacheRepository {
	return &cacheRepository{db: db, rdb: rdb, logger: logger}
}

func (r *cacheRepository) hotGet(ctx context.Context, key string) ([]byte, bool) {
	if r.rdb == nil {
		return nil, false
	}
	val, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Redis read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return val, true
}

// hotSet is best effort: a failed hot-layer write never fails the scan.
func (r *cacheRepository) hotSet(ctx context.Context, key string, val []byte) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Set(ctx, key, val, redisTTL).Err(); err != nil {
		r.logger.Warn("Redis write failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *cacheRepository) GetOCR(ctx context.Context, hash string) (string, bool, error) {
	key := "beholder:ocr:" + hash
	if val, ok := r.hotGet(ctx, key); ok {
		return string(val), true, nil
	}
	var text string
	err := r.db.GetContext(ctx, &text, `SELECT ocr FROM scan_cache WHERE hash = $1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	r.hotSet(ctx, key, []byte(text))
	return text, true, nil
}

func (r *cacheRepository) PutOCR(ctx context.Context, hash, text string) error {
	query := `INSERT INTO scan_cache (hash, ocr) VALUES ($1, $2)
	          ON CONFLICT (hash) DO UPDATE SET ocr = EXCLUDED.ocr`
	if _, err := r.db.ExecContext(ctx, query, hash, text); err != nil {
		return err
	}
	r.hotSet(ctx, "beholder:ocr:"+hash, []byte(text))
	return nil
}

func (r *cacheRepository) GetBasic(ctx context.Context, hash string) ([]byte, bool, error) {
	return r.getJSON(ctx, "beholder:basic:"+hash, `SELECT basic FROM basic_cache WHERE hash = $1`, hash)
}

func (r *cacheRepository) PutBasic(ctx context.Context, hash string, result []byte) error {
	query := `INSERT INTO basic_cache (hash, basic) VALUES ($1, $2)
	          ON CONFLICT (hash) DO UPDATE SET basic = EXCLUDED.basic`
	if _, err := r.db.ExecContext(ctx, query, hash, result); err != nil {
		return err
	}
	r.hotSet(ctx, "beholder:basic:"+hash, result)
	return nil
}

func (r *cacheRepository) GetLabel(ctx context.Context, hash string) ([]byte, bool, error) {
	return r.getJSON(ctx, "beholder:label:"+hash, `SELECT label FROM label_cache WHERE hash = $1`, hash)
}

func (r *cacheRepository) PutLabel(ctx context.Context, hash string, result []byte) error {
	query := `INSERT INTO label_cache (hash, label) VALUES ($1, $2)
	          ON CONFLICT (hash) DO UPDATE SET label = EXCLUDED.label`
	if _, err := r.db.ExecContext(ctx, query, hash, result); err != nil {
		return err
	}
	r.hotSet(ctx, "beholder:label:"+hash, result)
	return nil
}

// GetModelScores returns the cached score documents for the subset of
// modelNames already present for this fingerprint. Absent models are simply
// missing from the map; the caller fetches only those.
func (r *cacheRepository) GetModelScores(ctx context.Context, hash string, modelNames []string) (map[string][]byte, error) {
	if len(modelNames) == 0 {
		return map[string][]byte{}, nil
	}
	query, args, err := sqlx.In(`SELECT model, scores FROM premium_cache WHERE hash = ? AND model IN (?)`, hash, modelNames)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var model string
		var scores []byte
		if err := rows.Scan(&model, &scores); err != nil {
			return nil, err
		}
		out[model] = scores
	}
	return out, rows.Err()
}

func (r *cacheRepository) PutModelScore(ctx context.Context, hash, model string, result []byte) error {
	query := `INSERT INTO premium_cache (hash, model, scores) VALUES ($1, $2, $3)
	          ON CONFLICT (hash, model) DO UPDATE SET scores = EXCLUDED.scores`
	_, err := r.db.ExecContext(ctx, query, hash, model, result)
	return err
}

func (r *cacheRepository) getJSON(ctx context.Context, key, query, hash string) ([]byte, bool, error) {
	if val, ok := r.hotGet(ctx, key); ok {
		return val, true, nil
	}
	var raw []byte
	err := r.db.GetContext(ctx, &raw, query, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	r.hotSet(ctx, key, raw)
	return raw, true, nil
}
