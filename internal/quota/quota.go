// Package quota enforces the per-tenant monthly call budgets that gate the
// paid classification stages. Checks are evaluated against the tenant
// config loaded for the scan; consumption is a store-backed counter update
// performed only after a successful paid call.
package quota

import (
	"context"

	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/models"
	"github.com/brainboxdotcc/beholder/internal/repository"
)

// Gate answers whether a tenant may spend a paid call and records the
// spend. The gate is handed explicitly to the stages that need it.
type Gate struct {
	tenants repository.TenantRepository
	logger  *zap.Logger
}

func NewGate(tenants repository.TenantRepository, logger *zap.Logger) *Gate {
	return &Gate{tenants: tenants, logger: logger}
}

// AllowPremium reports whether the premium stage may call out: the tenant
// must hold a subscription and have budget left this month.
func (g *Gate) AllowPremium(cfg *models.GuildConfig) bool {
	return cfg.Premium() && cfg.CallsThisMonth < cfg.CallsLimit
}

// AllowObjects reports whether the label stage may call out.
func (g *Gate) AllowObjects(cfg *models.GuildConfig) bool {
	return cfg != nil && cfg.ObjectsThisMonth < cfg.ObjectLimit
}

// ConsumePremium records one successful premium API call.
func (g *Gate) ConsumePremium(ctx context.Context, guildID string) {
	if err := g.tenants.IncrementCalls(ctx, guildID); err != nil {
		g.logger.Error("Failed to increment premium call counter", zap.String("guild_id", guildID), zap.Error(err))
	}
}

// ConsumeObject records one successful label API call.
func (g *Gate) ConsumeObject(ctx context.Context, guildID string) {
	if err := g.tenants.IncrementObjects(ctx, guildID); err != nil {
		g.logger.Error("Failed to increment object call counter", zap.String("guild_id", guildID), zap.Error(err))
	}
}
