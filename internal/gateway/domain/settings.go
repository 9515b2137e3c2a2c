package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/datatypes"
)

const (
	ModeTest = "test"
	ModeLive = "live"
)

// Settings is the provider-specific configuration blob of one payment
// method. Credentials exist as two independent key sets (test_*, live_*)
// selected by the transaction mode; lookups never cross modes.
type Settings struct {
	mode string
	raw  map[string]any
}

// ParseSettings decodes a payment method settings blob. A missing or invalid
// transaction_mode defaults to test so a half-configured gateway can never
// charge live credentials by accident.
func ParseSettings(blob datatypes.JSON) (Settings, error) {
	raw := map[string]any{}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &raw); err != nil {
			return Settings{}, ErrConfiguration
		}
	}
	mode := strings.ToLower(strings.TrimSpace(stringValue(raw["transaction_mode"])))
	if mode != ModeLive {
		mode = ModeTest
	}
	return Settings{mode: mode, raw: raw}, nil
}

// NewSettings builds settings from an already-decoded map. Test helper and
// registry-sync seam.
func NewSettings(mode string, raw map[string]any) Settings {
	if raw == nil {
		raw = map[string]any{}
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != ModeLive {
		mode = ModeTest
	}
	return Settings{mode: mode, raw: raw}
}

func (s Settings) Mode() string { return s.mode }

func (s Settings) IsLive() bool { return s.mode == ModeLive }

// Credential resolves a mode-scoped key: Credential("api_key") reads
// "live_api_key" in live mode and "test_api_key" otherwise, never both.
func (s Settings) Credential(key string) string {
	return strings.TrimSpace(stringValue(s.raw[s.mode+"_"+key]))
}

func (s Settings) String(key string) string {
	return strings.TrimSpace(stringValue(s.raw[key]))
}

func (s Settings) Int64(key string) int64 {
	return int64Value(s.raw[key])
}

func (s Settings) Bool(key string) bool {
	switch v := s.raw[key].(type) {
	case bool:
		return v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && parsed
	default:
		return false
	}
}

// MinimumOrderTotal is the applicability floor in minor units.
func (s Settings) MinimumOrderTotal() int64 {
	return s.Int64("minimum_order_total")
}

// OrderStatus is the status an order transitions to on successful payment.
func (s Settings) OrderStatus() string {
	if status := s.String("order_status"); status != "" {
		return status
	}
	return "processing"
}

// CaptureStatus is the order status that triggers capture of an authorized
// payment, when the gateway authorizes without capturing.
func (s Settings) CaptureStatus() string {
	return s.String("capture_status")
}

func (s Settings) FeeType() string  { return s.String("fee_type") }
func (s Settings) FeeAmount() int64 { return s.Int64("fee_amount") }

// Config is the resolved runtime configuration of one payment method,
// handed to gateway plugins on every call.
type Config struct {
	Code     string
	Name     string
	Settings Settings
}

// FormatAmount renders minor units for user-facing messages ("20.00").
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

func stringValue(value any) string {
	switch cast := value.(type) {
	case string:
		return cast
	case json.Number:
		return cast.String()
	case float64:
		return strconv.FormatInt(int64(cast), 10)
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	default:
		return ""
	}
}

func int64Value(value any) int64 {
	switch cast := value.(type) {
	case float64:
		return int64(cast)
	case float32:
		return int64(cast)
	case int64:
		return cast
	case int:
		return int64(cast)
	case json.Number:
		parsed, err := cast.Int64()
		if err == nil {
			return parsed
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(cast), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}
