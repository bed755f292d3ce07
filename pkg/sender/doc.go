// Package sender defines the per-channel delivery contract and its three
// implementations: email (Postmark-backed), SMS (HTTP gateway), and in-app
// (formatted payload plus best-effort live broadcast).
//
// The Router dispatches over the closed channel set and normalizes failures
// into *DeliveryError, whose Retryable flag drives the caller's choice
// between backoff and terminal failure. Recipient validation failures and
// unsupported channels are permanent; transport trouble is transient.
package sender
