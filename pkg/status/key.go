package status

import (
	"fmt"
	"strings"
)

// Kind identifies a class of printer subsystem.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindControllerFan
	KindDisplayStatus
	KindExcludeObject
	KindExtruder
	KindFan
	KindFanGeneric
	KindFilamentMotionSensor
	KindFilamentSwitchSensor
	KindGCodeMove
	KindHeaterBed
	KindHeaterFan
	KindIdleTimeout
	KindMCU
	KindMoonraker
	KindMotionReport
	KindPauseResume
	KindPrintStats
	KindProbe
	KindStepperEnable
	KindSystemStats
	KindTemperatureFan
	KindTemperatureSensor
	KindTMC2130
	KindTMC2208
	KindTMC2209
	KindTMC2240
	KindTMC2660
	KindTMC5160
	KindToolhead
	KindVirtualSDCard
	KindWebhooks
	KindZThermalAdjust
	KindZTilt

	kindCount
)

// Naming describes whether a kind carries an instance name.
type Naming uint8

const (
	// NamingSingleton kinds have exactly one instance and no name token.
	NamingSingleton Naming = iota

	// NamingRequired kinds must be followed by an instance name.
	NamingRequired

	// NamingOptional kinds may omit the name; the bare topic is the
	// default instance.
	NamingOptional
)

type kindInfo struct {
	topic  string
	naming Naming

	// subscribable is false for keys that do not come from a Klipper
	// printer object.
	subscribable bool
}

var kinds = [kindCount]kindInfo{
	KindUnknown:              {topic: "unknown"},
	KindControllerFan:        {"controller_fan", NamingRequired, true},
	KindDisplayStatus:        {"display_status", NamingSingleton, true},
	KindExcludeObject:        {"exclude_object", NamingSingleton, true},
	KindExtruder:             {"extruder", NamingOptional, true},
	KindFan:                  {"fan", NamingSingleton, true},
	KindFanGeneric:           {"fan_generic", NamingRequired, true},
	KindFilamentMotionSensor: {"filament_motion_sensor", NamingRequired, true},
	KindFilamentSwitchSensor: {"filament_switch_sensor", NamingRequired, true},
	KindGCodeMove:            {"gcode_move", NamingSingleton, true},
	KindHeaterBed:            {"heater_bed", NamingOptional, true},
	KindHeaterFan:            {"heater_fan", NamingRequired, true},
	KindIdleTimeout:          {"idle_timeout", NamingSingleton, true},
	KindMCU:                  {"mcu", NamingSingleton, true},
	KindMoonraker:            {"moonraker", NamingSingleton, false},
	KindMotionReport:         {"motion_report", NamingSingleton, true},
	KindPauseResume:          {"pause_resume", NamingSingleton, true},
	KindPrintStats:           {"print_stats", NamingSingleton, true},
	KindProbe:                {"probe", NamingSingleton, true},
	KindStepperEnable:        {"stepper_enable", NamingSingleton, true},
	KindSystemStats:          {"system_stats", NamingSingleton, true},
	KindTemperatureFan:       {"temperature_fan", NamingRequired, true},
	KindTemperatureSensor:    {"temperature_sensor", NamingRequired, true},
	KindTMC2130:              {"tmc2130", NamingRequired, true},
	KindTMC2208:              {"tmc2208", NamingRequired, true},
	KindTMC2209:              {"tmc2209", NamingRequired, true},
	KindTMC2240:              {"tmc2240", NamingRequired, true},
	KindTMC2660:              {"tmc2660", NamingRequired, true},
	KindTMC5160:              {"tmc5160", NamingRequired, true},
	KindToolhead:             {"toolhead", NamingSingleton, true},
	KindVirtualSDCard:        {"virtual_sdcard", NamingSingleton, true},
	KindWebhooks:             {"webhooks", NamingSingleton, true},
	KindZThermalAdjust:       {"z_thermal_adjust", NamingSingleton, true},
	KindZTilt:                {"z_tilt", NamingSingleton, true},
}

var kindByTopic = func() map[string]Kind {
	m := make(map[string]Kind, kindCount)
	for k := KindUnknown + 1; k < kindCount; k++ {
		m[kinds[k].topic] = k
	}
	return m
}()

// String returns the topic prefix of the kind ("temperature_sensor").
func (k Kind) String() string {
	if k >= kindCount {
		return "unknown"
	}
	return kinds[k].topic
}

// Naming returns the kind's naming policy.
func (k Kind) Naming() Naming {
	if k >= kindCount {
		return NamingSingleton
	}
	return kinds[k].naming
}

// Subscribable reports whether the kind maps to a Klipper printer object
// that can be passed to printer.objects.subscribe.
func (k Kind) Subscribable() bool {
	return k < kindCount && kinds[k].subscribable
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount-1)
	for k := KindUnknown + 1; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Key identifies one subsystem instance in the cache.
//
// Name is empty for singleton kinds. For optional kinds the default
// instance is named after the kind ("extruder", "heater_bed").
type Key struct {
	Kind Kind
	Name string
}

// MoonrakerKey is where Moonraker process statistics are stored.
var MoonrakerKey = Key{Kind: KindMoonraker}

// ParseError reports a topic that does not match the subsystem grammar.
type ParseError struct {
	Topic  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("status: cannot parse topic %q: %s", e.Topic, e.Reason)
}

// ParseKey parses a printer object topic of the form "kind [name]".
func ParseKey(topic string) (Key, error) {
	fields := strings.Fields(topic)
	if len(fields) == 0 {
		return Key{}, &ParseError{Topic: topic, Reason: "empty topic"}
	}

	kind, ok := kindByTopic[fields[0]]
	if !ok {
		return Key{}, &ParseError{Topic: topic, Reason: "unknown kind"}
	}

	// Instance names may contain spaces ("temperature_sensor my sensor");
	// keep everything after the kind token.
	var name string
	if len(fields) > 1 {
		name = strings.Join(fields[1:], " ")
	}

	switch kind.Naming() {
	case NamingSingleton:
		if name != "" {
			return Key{}, &ParseError{Topic: topic, Reason: kind.String() + " takes no instance name"}
		}
	case NamingRequired:
		if name == "" {
			return Key{}, &ParseError{Topic: topic, Reason: kind.String() + " requires an instance name"}
		}
	case NamingOptional:
		if name == "" {
			name = kind.String()
		}
	}

	return Key{Kind: kind, Name: name}, nil
}

// String renders the key back into its topic.
func (k Key) String() string {
	switch k.Kind.Naming() {
	case NamingSingleton:
		return k.Kind.String()
	case NamingOptional:
		if k.Name == "" || k.Name == k.Kind.String() {
			return k.Kind.String()
		}
	}
	return k.Kind.String() + " " + k.Name
}

// Instance returns the name used to label the instance in exported
// metrics. Singletons use the kind itself.
func (k Key) Instance() string {
	if k.Name == "" {
		return k.Kind.String()
	}
	return k.Name
}

// Less orders keys by kind topic, then instance name.
func (k Key) Less(other Key) bool {
	a, b := k.Kind.String(), other.Kind.String()
	if a != b {
		return a < b
	}
	return k.Name < other.Name
}
