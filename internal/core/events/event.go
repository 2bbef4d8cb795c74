package events

import (
	. "exportguard/internal/core/domain"
)

// TickReportToUpdateEvents maps one control tick onto sensor update events.
// Readings that were missing on the tick produce no event, so the last known
// value stays retained on the broker.
func TickReportToUpdateEvents(report *TickReport) []any {
	var events []any

	if report.Price != nil {
		if report.Price.ImportPriceCents != nil {
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: SENSOR_ID_IMPORT_PRICE,
				},
				Value:    *report.Price.ImportPriceCents,
				Decimals: 2,
			})
		}
		if report.Price.FeedInPriceCents != nil {
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: SENSOR_ID_FEED_IN_PRICE,
				},
				Value:    *report.Price.FeedInPriceCents,
				Decimals: 2,
			})
		}
	}

	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_EXPORT_COSTLY,
		},
		Value: report.Decision.Costly,
	})
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_DECISION_REASON,
		},
		Value: string(report.Decision.Reason),
	})
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CONTROL_MODE,
		},
		Value: string(report.Plan.Mode),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_TARGET_POWER,
		},
		Value:    report.Plan.TargetWatt,
		Decimals: 0,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGE_SEEK_OFFSET,
		},
		Value:    report.OffsetWatt,
		Decimals: 0,
	})

	if report.Write != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_LIMIT_PERCENT,
			},
			Value:    float64(report.Write.Percent),
			Decimals: 0,
		})
		events = append(events, BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_LIMIT_ENABLED,
			},
			Value: report.Write.Enabled,
		})
	}

	events = append(events, telemetryUpdateEvents(report.Control)...)

	return events
}

func telemetryUpdateEvents(tel *ControlTelemetry) []any {
	if tel == nil {
		return nil
	}
	var events []any

	if tel.SOCPercent != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BATTERY_SOC,
			},
			Value:    *tel.SOCPercent,
			Decimals: 1,
		})
	}
	if tel.BatteryWatt != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BATTERY_POWER_FLOW,
			},
			Value:    *tel.BatteryWatt,
			Decimals: 0,
		})
	}
	if tel.GridWatt != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_GRID_POWER_FLOW,
			},
			Value:    *tel.GridWatt,
			Decimals: 0,
		})
	}
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_HOUSE_POWER,
		},
		Value:    tel.LoadWatt,
		Decimals: 0,
	})
	if tel.PVWatt != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_PV_POWER,
			},
			Value:    *tel.PVWatt,
			Decimals: 0,
		})
	}

	return events
}

func ForceZeroSwitchUpdateEvent(enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_FORCE_ZERO,
		},
		Value: enabled,
	}
}
