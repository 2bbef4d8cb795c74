package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "exportguard/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	SENSOR_ID_IMPORT_PRICE       = "import_price"
	SENSOR_ID_FEED_IN_PRICE      = "feed_in_price"
	SENSOR_ID_EXPORT_COSTLY      = "export_costly"
	SENSOR_ID_DECISION_REASON    = "decision_reason"
	SENSOR_ID_CONTROL_MODE       = "control_mode"
	SENSOR_ID_TARGET_POWER       = "target_power"
	SENSOR_ID_LIMIT_PERCENT      = "limit_percent"
	SENSOR_ID_LIMIT_ENABLED      = "limit_enabled"
	SENSOR_ID_CHARGE_SEEK_OFFSET = "charge_seek_offset"
	SENSOR_ID_BATTERY_SOC        = "battery_soc"
	SENSOR_ID_BATTERY_POWER_FLOW = "battery_power_flow"
	SENSOR_ID_GRID_POWER_FLOW    = "grid_power_flow"
	SENSOR_ID_HOUSE_POWER        = "house_power"
	SENSOR_ID_PV_POWER           = "pv_power"
	SWITCH_ID_FORCE_ZERO         = "force_zero_export"
	STATE_CLASS_MEASUREMENT      = "measurement"
	DEVICE_CLASS_BATTERY         = "battery"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_MONETARY        = "monetary"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	DEVICE_CLASS_POWER_FACTOR    = "power_factor"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("exportguard_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "exportguard",
		Model:        "ExportGuard",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("ExportGuard %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(host string, unitId uint8) Device {
	serial := fmt.Sprintf("%s:%d", host, unitId)
	return Device{
		Id:           fmt.Sprintf("eg_inverter_%s", md5HashShort(serial)),
		Manufacturer: "GoodWe",
		Model:        "Grid-tied inverter",
		Name:         fmt.Sprintf("GoodWe inverter %s", md5HashShort(serial)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// ControllerSensors describes every state the control loop reports over MQTT.
func ControllerSensors(inverterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_IMPORT_PRICE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid import price",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "c/kWh",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_IMPORT_PRICE),
		Icon:              "mdi:cash",
	})

	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_FEED_IN_PRICE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Feed-in price",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "c/kWh",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_FEED_IN_PRICE),
		Icon:              "mdi:cash",
	})

	sensors = append(sensors, GenericSensor{
		Device:     inverterDevice,
		Id:         SENSOR_ID_EXPORT_COSTLY,
		SensorType: SENSOR_TYPE_BINARY,
		Name:       "Export costs money",
		UniqueId:   uniqueId(inverterDevice.Id, SENSOR_ID_EXPORT_COSTLY),
		Icon:       "mdi:transmission-tower-export",
	})

	sensors = append(sensors, GenericSensor{
		Device:         inverterDevice,
		Id:             SENSOR_ID_DECISION_REASON,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Decision reason",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(inverterDevice.Id, SENSOR_ID_DECISION_REASON),
	})

	sensors = append(sensors, GenericSensor{
		Device:         inverterDevice,
		Id:             SENSOR_ID_CONTROL_MODE,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Control mode",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(inverterDevice.Id, SENSOR_ID_CONTROL_MODE),
	})

	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_TARGET_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Target output power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_TARGET_POWER),
	})

	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_LIMIT_PERCENT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Written limit percent",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_LIMIT_PERCENT),
	})

	sensors = append(sensors, GenericSensor{
		Device:     inverterDevice,
		Id:         SENSOR_ID_LIMIT_ENABLED,
		SensorType: SENSOR_TYPE_BINARY,
		Name:       "Export limit enabled",
		UniqueId:   uniqueId(inverterDevice.Id, SENSOR_ID_LIMIT_ENABLED),
	})

	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_CHARGE_SEEK_OFFSET,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Charge-seek offset",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_CHARGE_SEEK_OFFSET),
	})

	return sensors
}

// TelemetrySensors mirrors the battery provider readings the loop acts on.
func TelemetrySensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:            bridgeDevice,
		Id:                SENSOR_ID_BATTERY_SOC,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery state of charge",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(bridgeDevice.Id, SENSOR_ID_BATTERY_SOC),
	})

	sensors = append(sensors, GenericSensor{
		Device:            bridgeDevice,
		Id:                SENSOR_ID_BATTERY_POWER_FLOW,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery power flow",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(bridgeDevice.Id, SENSOR_ID_BATTERY_POWER_FLOW),
	})

	sensors = append(sensors, GenericSensor{
		Device:            bridgeDevice,
		Id:                SENSOR_ID_GRID_POWER_FLOW,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid power flow",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(bridgeDevice.Id, SENSOR_ID_GRID_POWER_FLOW),
	})

	sensors = append(sensors, GenericSensor{
		Device:            bridgeDevice,
		Id:                SENSOR_ID_HOUSE_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "House power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(bridgeDevice.Id, SENSOR_ID_HOUSE_POWER),
	})

	sensors = append(sensors, GenericSensor{
		Device:            bridgeDevice,
		Id:                SENSOR_ID_PV_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "PV power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(bridgeDevice.Id, SENSOR_ID_PV_POWER),
	})

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{
		{
			Device:         bridgeDevice,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Bridge state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
		},
	}
}

func ControlSwitches(inverterDevice Device) []GenericSwitch {
	return []GenericSwitch{
		{
			Device:   inverterDevice,
			Id:       SWITCH_ID_FORCE_ZERO,
			Name:     "Force zero export",
			UniqueId: uniqueId(inverterDevice.Id, SWITCH_ID_FORCE_ZERO),
			Icon:     "mdi:solar-power-variant-outline",
		},
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	return md5Hash(text)[:8]
}
