package entity

// ShopGatewaySettings holds the per-shop, per-gateway commission and payout
// delay. Read-only from this service's perspective.
type ShopGatewaySettings struct {
	ShopID            string
	Gateway           string
	CommissionPercent string
	PayoutDelayDays   int32
}
