package service

import "errors"

var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentAlreadyExists    = errors.New("payment already exists")
	ErrGatewayUnsupported      = errors.New("gateway is not supported")
	ErrUnknownPayment          = errors.New("no payment matches the gateway payment id")
	ErrChargebackAmountMissing = errors.New("chargeback requires a positive amount")
	ErrPersistenceConflict     = errors.New("concurrent payment update conflict")
	ErrGatewayUnreachable      = errors.New("gateway status query failed")
)
