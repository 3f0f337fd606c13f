package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/entity"
)

// ShopSettingsRepository is read-only here; commission and payout delay are
// managed by the merchant administration service.
type ShopSettingsRepository struct {
	db DBTX
}

func NewShopSettingsRepository(db DBTX) *ShopSettingsRepository {
	return &ShopSettingsRepository{db: db}
}

// ListByShop returns every configured gateway row for the shop. A gateway
// with no row has no payout terms and its payments are not disbursable.
func (r *ShopSettingsRepository) ListByShop(ctx context.Context, shopID string) ([]*entity.ShopGatewaySettings, error) {
	query := `
		SELECT shop_id, gateway, commission_percent, payout_delay_days
		FROM shop_gateway_settings
		WHERE shop_id = ?
	`

	rows, err := r.db.QueryContext(ctx, query, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.ShopGatewaySettings, 0)
	for rows.Next() {
		settings := &entity.ShopGatewaySettings{}
		if err := rows.Scan(&settings.ShopID, &settings.Gateway, &settings.CommissionPercent, &settings.PayoutDelayDays); err != nil {
			return nil, err
		}
		items = append(items, settings)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
