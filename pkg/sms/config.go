package sms

import "time"

// Config holds SMS gateway configuration. GatewayURL and APIKey are optional
// so development environments can fall back to DevGateway.
type Config struct {
	GatewayURL     string        `env:"SMS_GATEWAY_URL"`
	APIKey         string        `env:"SMS_API_KEY"`
	SenderName     string        `env:"SMS_SENDER_NAME" envDefault:"notify"`
	RequestTimeout time.Duration `env:"SMS_REQUEST_TIMEOUT" envDefault:"10s"`
}
