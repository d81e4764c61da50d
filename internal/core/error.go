package core

import "errors"

// Error taxonomy shared by the orchestrator components
var (
	ErrTransportFailure   = errors.New("transport failure")
	ErrEndpointUnresolved = errors.New("endpoint unresolved")
	ErrValidationFailure  = errors.New("candidate move illegal")
	ErrNoLegalMoves       = errors.New("no legal moves")
	ErrEngineStall        = errors.New("engine stalled")
	ErrEngineInit         = errors.New("engine initialization failed")
	ErrAckTimeout         = errors.New("move not acknowledged")
	ErrInvalidFEN         = errors.New("invalid FEN")
	ErrNotConnected       = errors.New("transport not connected")
)

// Error codes returned by the control API
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeUnavailable     = "UNAVAILABLE"
	CodeHalted          = "HALTED"
	CodeNotMyTurn       = "NOT_MY_TURN"
	CodeDeliveryPending = "DELIVERY_PENDING"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimited     = "RATE_LIMIT_EXCEEDED"
)
