package domain

import "fmt"

// ControlRequest

type ControlRequest interface {
	ActorRequest
	ControlCommand() string
}

type ControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r ControlRequestMixIn) ControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// ControlResponse

type ControlResponse interface {
	ActorResponse
	ControlResponse() string
}

type ControlResponseMixIn struct {
	ActorResponse
}

func (r ControlResponseMixIn) ControlResponse() string {
	return fmt.Sprintf("%T", r)
}

// Control commands

type ControlForceZeroRequest struct {
	ControlRequestMixIn
	Enable bool
}

type ControlForceZeroResponse struct {
	ControlResponseMixIn
	Changed bool
}

type ControlGetForceZeroRequest struct {
	ControlRequestMixIn
}

type ControlGetForceZeroResponse struct {
	ControlResponseMixIn
	State bool
}

// ensure interface compliance
var _ ControlRequest = (*ControlForceZeroRequest)(nil)
