// Package sms provides a provider-agnostic SMS gateway interface with an
// HTTP implementation for JSON aggregator APIs and an in-memory DevGateway
// for development and tests.
//
// Send errors distinguish retryable transport trouble (ErrFailedToSend)
// from permanent gateway rejections (ErrGatewayRejected) so delivery code
// can decide between backing off and giving up.
package sms
