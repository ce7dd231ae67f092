package store

import (
	"strconv"
	"strings"
)

// Field alias tables.
//
// Gateway firmware generations disagree on payload field spelling, some
// using spaced names ("skin temp", "gateway id"), some snake_case, some
// camelCase. Every logical field is read through one alias list, first
// present alias wins. Adding a spelling is a one-line table edit.
var (
	macAliases         = []string{"MAC", "mac address", "macAddress", "mac"}
	deviceNameAliases  = []string{"name", "device_name"}
	heartRateAliases   = []string{"hr", "heart rate", "heart_rate"}
	skinTempAliases    = []string{"skin temp", "skin_temp"}
	roomTempAliases    = []string{"room temp", "room_temp"}
	spo2Aliases        = []string{"SpO2", "spo2"}
	bpSystAliases      = []string{"bp syst", "bp_syst", "systolic"}
	bpDiastAliases     = []string{"bp diast", "bp_diast", "diastolic"}
	stepsAliases       = []string{"steps"}
	lightSleepAliases  = []string{"light sleep (min)", "light_sleep_min"}
	deepSleepAliases   = []string{"deep sleep (min)", "deep_sleep_min"}
	batteryAliases     = []string{"battery level", "battery_level"}
	batteryVoltAliases = []string{"battery voltage", "battery_voltage"}
	signalAliases      = []string{"signal strength", "signal_strength"}
	gatewayIDAliases   = []string{"gateway id", "gateway_id", "gatewayId"}
	serialNoAliases    = []string{"serial no", "serial_no", "serialNo", "correlationId"}
	idHexAliases       = []string{"id(Hex)", "id_hex", "idHex"}
	floorIDAliases     = []string{"floor_id", "floorId"}
	residentIDAliases  = []string{"resident_id", "residentId"}
	residentNameAlias  = []string{"resident_name", "residentName"}
	residentRoomAlias  = []string{"resident_room", "residentRoom"}
	statusAliases      = []string{"status", "result"}
	codeAliases        = []string{"code", "err"}
	messageAliases     = []string{"message", "info"}
	commandAliases     = []string{"command", "Command"}
	fwVerAliases       = []string{"fw ver", "fw_ver"}
	fwUpdateAliases    = []string{"fw update", "fw_update"}
	ledOnAliases       = []string{"led on time(1ms)", "led_on_time"}
	ledOffAliases      = []string{"led off time(1ms)", "led_off_time"}
	batDetectAliases   = []string{"bat detect time(1s)", "bat_detect_time"}
	fiveVAliases       = []string{"5V plugged", "five_v_plugged"}
	txPowerChgAliases  = []string{"uwb tx power changed", "uwb_tx_power_changed"}
	txPowerAliases     = []string{"uwb tx power", "uwb_tx_power"}
	locEngineAliases   = []string{"location engine", "location_engine"}
	respModeAliases    = []string{"responsive mode(0=On,1=Off)", "responsive_mode"}
	statDetectAliases  = []string{"stationary detect", "stationary_detect"}
	nominalUDRAliases  = []string{"nominal udr(hz)", "nominal_udr"}
	statUDRAliases     = []string{"stationary udr(hz)", "stationary_udr"}
)

// lookupField returns the value of the first alias present in obj.
func lookupField(obj map[string]any, aliases []string) (any, bool) {
	for _, name := range aliases {
		if v, ok := obj[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// stringField returns the field as a string, tolerating numeric values.
// Returns "" when absent.
func stringField(obj map[string]any, aliases []string) string {
	v, ok := lookupField(obj, aliases)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// intField returns the field as an int, tolerating string-encoded
// numbers. Returns 0 when absent or unparseable; callers treat 0 as
// "not reported", which matches device behaviour (no sensor ever
// legitimately reports 0 for these fields).
func intField(obj map[string]any, aliases []string) int {
	v, ok := lookupField(obj, aliases)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		n = strings.TrimSpace(n)
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int(f)
		}
		return 0
	default:
		return 0
	}
}

// floatField returns the field as a float64, tolerating string-encoded
// numbers. Returns 0 when absent or unparseable.
func floatField(obj map[string]any, aliases []string) float64 {
	v, ok := lookupField(obj, aliases)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
		return 0
	default:
		return 0
	}
}

// objectField returns the field as a nested JSON object, or nil.
func objectField(obj map[string]any, aliases []string) map[string]any {
	v, ok := lookupField(obj, aliases)
	if !ok {
		return nil
	}
	nested, _ := v.(map[string]any)
	return nested
}

// Position is a UWB coordinate fix. Quality is the positioning engine's
// confidence percentage, 0 when not reported.
type Position struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Quality float64 `json:"quality"`
}

// parsePosition extracts a position object from the payload. X and Y are
// required; Z and quality default to 0. Returns false when the position
// is missing or malformed.
func parsePosition(obj map[string]any) (Position, bool) {
	nested, _ := obj["position"].(map[string]any)
	if nested == nil {
		return Position{}, false
	}
	x, xok := nested["x"].(float64)
	y, yok := nested["y"].(float64)
	if !xok || !yok {
		return Position{}, false
	}
	z, _ := nested["z"].(float64)
	q, _ := nested["quality"].(float64)
	return Position{X: x, Y: y, Z: z, Quality: q}, true
}
