package gateway

import "errors"

// Domain errors for the gateway package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, gateway.ErrTopicConflict) {
//	    // handle colliding topic derivation
//	}
var (
	// ErrInvalidGateway is returned when a gateway is missing its ID.
	ErrInvalidGateway = errors.New("gateway: invalid gateway")

	// ErrTopicConflict is returned when a gateway's derived topic set
	// overlaps a topic already owned by a different gateway. Without this
	// guard two gateways with colliding non-conforming names would forge
	// each other's topics.
	ErrTopicConflict = errors.New("gateway: topic already owned by another gateway")

	// ErrNotFound is returned by repository lookups for unknown gateway IDs.
	ErrNotFound = errors.New("gateway: not found")
)
