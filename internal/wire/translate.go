package wire

import "github.com/reactorctl/reactorctl/internal/types"

// payloadFloat and payloadBool extract typed fields from a packet's
// payload table, defaulting to the zero value if absent or mistyped —
// a malformed packet degrades a unit's telemetry rather than panics.
func payloadFloat(p map[string]any, key string) float64 {
	if v, ok := p[key].(float64); ok {
		return v
	}
	return 0
}

func payloadBool(p map[string]any, key string) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return false
}

func payloadInt(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// ReactorSnapshotFromStatus reconstructs a types.ReactorSnapshot from a
// PLC_STATUS packet's payload table, as published by cmd/reactor-plc.
func ReactorSnapshotFromStatus(p Packet) types.ReactorSnapshot {
	pl := p.Payload
	return types.ReactorSnapshot{
		Status:            payloadBool(pl, "status"),
		FuelFill:          payloadFloat(pl, "fuel_fill"),
		CoolantFill:       payloadFloat(pl, "coolant_fill"),
		WasteFill:         payloadFloat(pl, "waste_fill"),
		HeatedCoolantFill: payloadFloat(pl, "heated_coolant_fill"),
		TemperatureK:      payloadFloat(pl, "temperature_k"),
		DamagePercent:     payloadFloat(pl, "damage_percent"),
		BoilRate:          payloadFloat(pl, "boil_rate"),
		BurnRate:          payloadFloat(pl, "burn_rate"),
		EnvironmentalLoss: payloadFloat(pl, "environmental_loss"),
		ForceDisabled:     payloadBool(pl, "force_disabled"),
		Readable:          payloadBool(pl, "readable"),
		CriticalAlarm:     payloadBool(pl, "critical_alarm"),
	}
}

// UnitIDFromStatus extracts the unit_id field common to PLC_STATUS and
// PLC_RPS_STATUS payloads.
func UnitIDFromStatus(p Packet) int {
	return payloadInt(p.Payload, "unit_id")
}
