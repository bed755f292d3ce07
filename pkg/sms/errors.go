package sms

import "errors"

var (
	ErrInvalidConfig   = errors.New("sms.errors.invalid_config")
	ErrInvalidParams   = errors.New("sms.errors.invalid_params")
	ErrFailedToSend    = errors.New("sms.errors.failed_to_send")
	ErrGatewayRejected = errors.New("sms.errors.gateway_rejected")
)
