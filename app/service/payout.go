package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/entity"
)

// PayoutLine is one PAID payment's contribution to a shop payout.
type PayoutLine struct {
	PaymentID       uint64    `json:"paymentId"`
	Gateway         string    `json:"gateway"`
	Currency        string    `json:"currency"`
	GrossCents      int64     `json:"grossCents"`
	CommissionCents int64     `json:"commissionCents"`
	NetCents        int64     `json:"netCents"`
	PaidAt          time.Time `json:"paidAt"`
	EligibleAt      time.Time `json:"eligibleAt"`
}

// PayoutEligibility is the payout picture for one shop at a point in time.
type PayoutEligibility struct {
	ShopID        string       `json:"shopId"`
	AsOf          time.Time    `json:"asOf"`
	EligibleCents int64        `json:"eligibleCents"`
	PendingCents  int64        `json:"pendingCents"`
	Eligible      []PayoutLine `json:"eligible"`
	Pending       []PayoutLine `json:"pending"`
}

var oneHundred = decimal.NewFromInt(100)

// ComputeEligibility walks the shop's PAID payments and splits them into
// amounts releasable now and amounts still inside the per-gateway payout
// delay. Payments without gateway settings are skipped with a warning rather
// than paid out at an assumed rate.
func (s *PaymentService) ComputeEligibility(ctx context.Context, shopID string, asOf time.Time) (*PayoutEligibility, error) {
	if shopID == "" {
		return nil, ErrInvalidRequest
	}

	payments, err := s.paymentRepo.ListPaidByShop(ctx, shopID)
	if err != nil {
		return nil, err
	}

	shopSettings, err := s.settingsRepo.ListByShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	settingsByGateway := make(map[string]*entity.ShopGatewaySettings, len(shopSettings))
	for _, settings := range shopSettings {
		settingsByGateway[settings.Gateway] = settings
	}

	report := &PayoutEligibility{
		ShopID:   shopID,
		AsOf:     asOf,
		Eligible: []PayoutLine{},
		Pending:  []PayoutLine{},
	}

	for _, payment := range payments {
		if payment.PaidAt == nil {
			continue
		}

		settings, ok := settingsByGateway[payment.Gateway]
		if !ok {
			s.logger.WithFields(logrus.Fields{
				"shop_id":    shopID,
				"gateway":    payment.Gateway,
				"payment_id": payment.ID,
			}).Warn("No payout settings for shop gateway, payment skipped")
			continue
		}

		netCents, commissionCents, err := netAfterCommission(payment.AmountCents, settings.CommissionPercent)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"shop_id": shopID,
				"gateway": payment.Gateway,
				"error":   err.Error(),
			}).Error("Unparseable commission rate, payment skipped")
			continue
		}

		line := PayoutLine{
			PaymentID:       payment.ID,
			Gateway:         payment.Gateway,
			Currency:        payment.Currency,
			GrossCents:      payment.AmountCents,
			CommissionCents: commissionCents,
			NetCents:        netCents,
			PaidAt:          *payment.PaidAt,
			EligibleAt:      payment.PaidAt.AddDate(0, 0, int(settings.PayoutDelayDays)),
		}

		if line.EligibleAt.After(asOf) {
			report.Pending = append(report.Pending, line)
			report.PendingCents += line.NetCents
		} else {
			report.Eligible = append(report.Eligible, line)
			report.EligibleCents += line.NetCents
		}
	}

	return report, nil
}

// netAfterCommission computes gross minus the percentage commission, rounding
// half away from zero to whole cents.
func netAfterCommission(grossCents int64, commissionPercent string) (net int64, commission int64, err error) {
	rate, err := decimal.NewFromString(commissionPercent)
	if err != nil {
		return 0, 0, err
	}

	gross := decimal.NewFromInt(grossCents)
	netDec := gross.Mul(oneHundred.Sub(rate)).Div(oneHundred).Round(0)
	net = netDec.IntPart()
	return net, grossCents - net, nil
}
