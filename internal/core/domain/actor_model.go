package domain

import "exportguard/pkg/goodwe"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_PRICES       = "prices"
	ACTOR_ID_TELEMETRY    = "telemetry"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_CONTROL      = "control"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetPriceSnapshotRequest struct {
	ActorRequestMixIn
}

type GetPriceSnapshotResponse struct {
	ActorResponseMixIn
	Snapshot *PriceSnapshot
}

type GetTelemetrySnapshotRequest struct {
	ActorRequestMixIn
}

type GetTelemetrySnapshotResponse struct {
	ActorResponseMixIn
	Snapshot *TelemetrySnapshot
}

type WritePowerLimitRequest struct {
	ActorRequestMixIn
	Limit goodwe.PowerLimit
}

type WritePowerLimitResponse struct {
	ActorResponseMixIn
}

type ReadPowerLimitRequest struct {
	ActorRequestMixIn
}

type ReadPowerLimitResponse struct {
	ActorResponseMixIn
	Limit *goodwe.PowerLimit
}

type GetTickReportRequest struct {
	ActorRequestMixIn
}

type GetTickReportResponse struct {
	ActorResponseMixIn
	Report *TickReport
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
