// Package status holds the live state of a Klipper printer as reported by
// Moonraker.
//
// # Subsystem Keys
//
// Every Klipper printer object topic ("extruder", "temperature_sensor
// chamber", "tmc2209 stepper_x") parses into a Key made of a Kind and an
// optional instance name. Each Kind has a naming policy:
//
//   - Singleton kinds (toolhead, webhooks, print_stats, ...) never carry a
//     name.
//   - Named kinds (temperature_sensor, fan_generic, tmcXXXX, ...) require one.
//   - Optional kinds (extruder, heater_bed) may omit it; the bare topic
//     refers to the default instance, named after the kind itself.
//
// Topics outside the known set fail with a *ParseError and are skipped by
// callers. Only the primary "mcu" is tracked; secondary MCUs are rejected.
//
// # Cache
//
// Cache stores one JSON document per Key. Updates are applied as RFC 7386
// merge patches: fields absent from a patch are kept, null deletes a field,
// arrays and scalars replace the previous value wholesale.
//
//	cache := status.NewCache()
//	cache.Merge(status.Key{Kind: status.KindExtruder, Name: "extruder"}, []byte(`{"temperature":205.3}`))
//	for _, entry := range cache.Snapshot() {
//	    fmt.Println(entry.Key, string(entry.Value))
//	}
package status
