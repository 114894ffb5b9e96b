package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/models"
)

// TenantRepository reads per-guild moderation rules and tracks the monthly
// quota counters the premium and label stages consume.
type TenantRepository interface {
	GetConfig(ctx context.Context, guildID string) (*models.GuildConfig, error)
	GetPatterns(ctx context.Context, guildID string) ([]models.Pattern, error)
	CountPatterns(ctx context.Context, guildID string) (int, error)
	GetPremiumFilters(ctx context.Context, guildID string) ([]models.PremiumFilter, error)
	GetFilterModels(ctx context.Context) ([]models.PremiumFilterModel, error)
	GetBypassRoles(ctx context.Context, guildID string) ([]string, error)
	IsChannelIgnored(ctx context.Context, guildID, channelID string) (bool, error)
	IsBlocked(ctx context.Context, guildID, hash string) (bool, error)
	AddBlock(ctx context.Context, guildID, hash string) error
	RemoveBlock(ctx context.Context, guildID, hash string) error
	IncrementCalls(ctx context.Context, guildID string) error
	IncrementObjects(ctx context.Context, guildID string) error
}

type tenantRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewTenantRepository(db *sqlx.DB, logger *zap.Logger) TenantRepository {
	return &tenantRepository{db: db, logger: logger}
}

// GetConfig returns nil without error when the guild has no config row.
// Callers treat that as "no rules configured" and skip scanning.
func (r *tenantRepository) GetConfig(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	var cfg models.GuildConfig
	query := `SELECT guild_id, log_channel, embed_title, embed_body, premium_title, premium_body,
	                 premium_subscription, notifications_off, calls_this_month, calls_limit,
	                 objects_this_month, object_limit, basic_nsfw_suggestive, basic_nsfw_porn,
	                 basic_nsfw_drawing, basic_nsfw_hentai
	          FROM guild_config WHERE guild_id = $1`
	err := r.db.GetContext(ctx, &cfg, query, guildID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *tenantRepository) GetPatterns(ctx context.Context, guildID string) ([]models.Pattern, error) {
	var patterns []models.Pattern
	query := `SELECT guild_id, pattern FROM guild_patterns WHERE guild_id = $1 ORDER BY pattern`
	if err := r.db.SelectContext(ctx, &patterns, query, guildID); err != nil {
		return nil, err
	}
	return patterns, nil
}

func (r *tenantRepository) CountPatterns(ctx context.Context, guildID string) (int, error) {
	var total int
	query := `SELECT COUNT(guild_id) FROM guild_patterns WHERE guild_id = $1`
	if err := r.db.GetContext(ctx, &total, query, guildID); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *tenantRepository) GetPremiumFilters(ctx context.Context, guildID string) ([]models.PremiumFilter, error) {
	var filters []models.PremiumFilter
	query := `SELECT guild_id, pattern, score FROM premium_filters WHERE guild_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &filters, query, guildID); err != nil {
		return nil, err
	}
	return filters, nil
}

func (r *tenantRepository) GetFilterModels(ctx context.Context) ([]models.PremiumFilterModel, error) {
	var rows []models.PremiumFilterModel
	query := `SELECT category, model, description FROM premium_filter_model`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *tenantRepository) GetBypassRoles(ctx context.Context, guildID string) ([]string, error) {
	var roles []string
	query := `SELECT role_id FROM guild_bypass_roles WHERE guild_id = $1`
	if err := r.db.SelectContext(ctx, &roles, query, guildID); err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *tenantRepository) IsChannelIgnored(ctx context.Context, guildID, channelID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM guild_ignored_channels WHERE guild_id = $1 AND channel_id = $2`
	if err := r.db.GetContext(ctx, &count, query, guildID, channelID); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *tenantRepository) IsBlocked(ctx context.Context, guildID, hash string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM block_list_items WHERE guild_id = $1 AND hash = $2`
	if err := r.db.GetContext(ctx, &count, query, guildID, hash); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *tenantRepository) AddBlock(ctx context.Context, guildID, hash string) error {
	query := `INSERT INTO block_list_items (guild_id, hash) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, guildID, hash)
	return err
}

func (r *tenantRepository) RemoveBlock(ctx context.Context, guildID, hash string) error {
	query := `DELETE FROM block_list_items WHERE guild_id = $1 AND hash = $2`
	_, err := r.db.ExecContext(ctx, query, guildID, hash)
	return err
}

func (r *tenantRepository) IncrementCalls(ctx context.Context, guildID string) error {
	query := `UPDATE guild_config SET calls_this_month = calls_this_month + 1 WHERE guild_id = $1`
	_, err := r.db.ExecContext(ctx, query, guildID)
	return err
}

func (r *tenantRepository) IncrementObjects(ctx context.Context, guildID string) error {
	query := `UPDATE guild_config SET objects_this_month = objects_this_month + 1 WHERE guild_id = $1`
	_, err := r.db.ExecContext(ctx, query, guildID)
	return err
}
