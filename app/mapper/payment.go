package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/entity"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/types"
)

func PaymentToResponse(item *entity.Payment) *types.PaymentResponse {
	if item == nil {
		return nil
	}

	return &types.PaymentResponse{
		Id:                    item.ID,
		ShopId:                item.ShopID,
		MerchantOrderId:       item.MerchantOrderID,
		Gateway:               item.Gateway,
		GatewayPaymentId:      derefString(item.GatewayPaymentID),
		AmountCents:           item.AmountCents,
		Currency:              item.Currency,
		SourceCurrency:        derefString(item.SourceCurrency),
		AmountEditable:        item.AmountEditable,
		MaxPayments:           derefInt32(item.MaxPayments),
		Status:                string(item.Status),
		ChargebackAmountCents: derefInt64(item.ChargebackAmountCents),
		PaidAt:                formatTimePtr(item.PaidAt),
		ExpiresAt:             formatTimePtr(item.ExpiresAt),
		CreatedAt:             item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:             item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentsToResponse(items []*entity.Payment) []*types.PaymentResponse {
	result := make([]*types.PaymentResponse, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt32(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func formatTimePtr(v *time.Time) *string {
	if v == nil {
		return nil
	}
	formatted := v.UTC().Format(time.RFC3339)
	return &formatted
}
