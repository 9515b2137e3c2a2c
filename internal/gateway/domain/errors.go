package domain

import "errors"

var (
	// ErrConfiguration marks missing or invalid gateway credentials. Fatal
	// for the request; never retried.
	ErrConfiguration = errors.New("gateway_configuration_error")

	ErrGatewayNotFound    = errors.New("gateway_not_found")
	ErrEntryPointNotFound = errors.New("entry_point_not_found")

	ErrPaymentMethodMismatch = errors.New("payment_method_mismatch")
	ErrBelowMinimumTotal     = errors.New("below_minimum_order_total")

	// ErrProvider wraps any failure originating from the external API call.
	// The raw provider payload is logged internally; callers surface only a
	// generic message.
	ErrProvider = errors.New("provider_error")

	// ErrAlreadyProcessed is not a failure: a duplicate completion trigger
	// observed the processed flag and became a log-only no-op.
	ErrAlreadyProcessed = errors.New("payment_already_processed")

	ErrNothingToRefund    = errors.New("nothing_to_refund")
	ErrNoChargeToRefund   = errors.New("no_charge_to_refund")
	ErrRefundExceedsTotal = errors.New("refund_exceeds_order_total")

	// ErrNotImplemented is returned when a capability (capture, cancel,
	// refund, profile) is invoked on a gateway that does not support it.
	ErrNotImplemented = errors.New("gateway_capability_not_implemented")

	ErrWebhookSignature = errors.New("invalid_webhook_signature")
	ErrWebhookIgnored   = errors.New("webhook_event_ignored")
)
