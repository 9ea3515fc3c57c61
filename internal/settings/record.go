package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	KeyWelcomeChannel = "welcome_channel"
	KeyRulesChannel   = "rules_channel"
	KeyWelcomeEnabled = "welcome_enabled"
	KeyGoodbyeEnabled = "goodbye_enabled"
	KeyWelcomeMessage = "welcome_message"
	KeyGoodbyeMessage = "goodbye_message"
	KeyEmbedColor     = "embed_color"

	maxColor = 0xFFFFFF
)

var knownKeys = []string{
	KeyWelcomeChannel,
	KeyRulesChannel,
	KeyWelcomeEnabled,
	KeyGoodbyeEnabled,
	KeyWelcomeMessage,
	KeyGoodbyeMessage,
	KeyEmbedColor,
}

var ErrEmptyGuildID = errors.New("settings: empty guild id")

// UnknownKeyError is returned by a strict store for keys outside the schema.
type UnknownKeyError struct {
	Key string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("settings: unknown key %q", e.Key)
}

// InvalidValueError is returned when a value cannot be stored under a known key.
type InvalidValueError struct {
	Key    string
	Value  any
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("settings: invalid value %v for %q: %s", e.Value, e.Key, e.Reason)
}

// Record is the settings of one guild. Keys outside the schema live in Extra.
type Record struct {
	WelcomeChannel string
	RulesChannel   string
	WelcomeEnabled bool
	GoodbyeEnabled bool
	WelcomeMessage string
	GoodbyeMessage string
	EmbedColor     int
	Extra          map[string]any
}

// Keys returns the schema keys in display order.
func Keys() []string {
	return append([]string(nil), knownKeys...)
}

func IsKnownKey(key string) bool {
	for _, k := range knownKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Value returns the value stored under key.
func (r Record) Value(key string) (any, bool) {
	switch key {
	case KeyWelcomeChannel:
		return r.WelcomeChannel, true
	case KeyRulesChannel:
		return r.RulesChannel, true
	case KeyWelcomeEnabled:
		return r.WelcomeEnabled, true
	case KeyGoodbyeEnabled:
		return r.GoodbyeEnabled, true
	case KeyWelcomeMessage:
		return r.WelcomeMessage, true
	case KeyGoodbyeMessage:
		return r.GoodbyeMessage, true
	case KeyEmbedColor:
		return r.EmbedColor, true
	}
	value, ok := r.Extra[key]
	return value, ok
}

// ExtraKeys returns the non-schema keys in sorted order.
func (r Record) ExtraKeys() []string {
	keys := make([]string, 0, len(r.Extra))
	for key := range r.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r Record) clone() Record {
	out := r
	if r.Extra != nil {
		out.Extra = make(map[string]any, len(r.Extra))
		for key, value := range r.Extra {
			out.Extra[key] = value
		}
	}
	return out
}

// set stores value under key, coercing strings for typed keys.
func (r *Record) set(key string, value any, strict bool) error {
	switch key {
	case KeyWelcomeChannel:
		return setString(&r.WelcomeChannel, key, value)
	case KeyRulesChannel:
		return setString(&r.RulesChannel, key, value)
	case KeyWelcomeMessage:
		return setString(&r.WelcomeMessage, key, value)
	case KeyGoodbyeMessage:
		return setString(&r.GoodbyeMessage, key, value)
	case KeyWelcomeEnabled:
		return setBool(&r.WelcomeEnabled, key, value)
	case KeyGoodbyeEnabled:
		return setBool(&r.GoodbyeEnabled, key, value)
	case KeyEmbedColor:
		color, err := ParseColor(value)
		if err != nil {
			return &InvalidValueError{Key: key, Value: value, Reason: err.Error()}
		}
		r.EmbedColor = color
		return nil
	}
	if strict {
		return &UnknownKeyError{Key: key}
	}
	if r.Extra == nil {
		r.Extra = make(map[string]any)
	}
	r.Extra[key] = value
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(knownKeys)+len(r.Extra))
	for key, value := range r.Extra {
		doc[key] = value
	}
	for _, key := range knownKeys {
		doc[key], _ = r.Value(key)
	}
	return json.Marshal(doc)
}

func setString(dst *string, key string, value any) error {
	s, ok := value.(string)
	if !ok {
		return &InvalidValueError{Key: key, Value: value, Reason: "expected a string"}
	}
	*dst = s
	return nil
}

func setBool(dst *bool, key string, value any) error {
	switch v := value.(type) {
	case bool:
		*dst = v
		return nil
	case string:
		parsed, ok := parseSwitch(v)
		if !ok {
			return &InvalidValueError{Key: key, Value: value, Reason: "expected on/off"}
		}
		*dst = parsed
		return nil
	}
	return &InvalidValueError{Key: key, Value: value, Reason: "expected a boolean"}
}

func parseSwitch(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on", "enable", "enabled":
		return true, true
	case "0", "false", "no", "off", "disable", "disabled":
		return false, true
	}
	return false, false
}

// ParseColor accepts an integer or a "#RRGGBB", "0xRRGGBB" or decimal string
// and returns the 24-bit color.
func ParseColor(value any) (int, error) {
	var color int64
	switch v := value.(type) {
	case int:
		color = int64(v)
	case int64:
		color = v
	case float64:
		if v != math.Trunc(v) {
			return 0, errors.New("color must be an integer")
		}
		color = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, err
		}
		color = parsed
	case string:
		parsed, err := parseColorString(v)
		if err != nil {
			return 0, err
		}
		color = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
	if color < 0 || color > maxColor {
		return 0, fmt.Errorf("color %d out of range", color)
	}
	return int(color), nil
}

func parseColorString(value string) (int64, error) {
	s := strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(s, "#"):
		return strconv.ParseInt(s[1:], 16, 64)
	case strings.HasPrefix(strings.ToLower(s), "0x"):
		return strconv.ParseInt(s[2:], 16, 64)
	default:
		return strconv.ParseInt(s, 10, 64)
	}
}
