// Package traffic drives synthetic load against the /ask endpoint. Each
// mode selects a question family that provokes a distinct telemetry
// pattern: normal calls, latency spikes, token explosions and safety
// blocks.
package traffic

import (
	"fmt"
	"strings"
)

// Mode selects the question family sent by the generator
type Mode string

const (
	ModeNormal         Mode = "NORMAL"
	ModeLatency        Mode = "LATENCY"
	ModeTokenExplosion Mode = "TOKEN_EXPLOSION"
	ModeUnsafe         Mode = "UNSAFE"
	ModeMixed          Mode = "MIXED"
)

// BaseModes are the modes that own templates. MIXED rotates over them.
var BaseModes = []Mode{ModeNormal, ModeLatency, ModeTokenExplosion, ModeUnsafe}

var modeDescriptions = map[Mode]string{
	ModeNormal:         "short factual questions",
	ModeLatency:        "long-form essay prompts that push latency up",
	ModeTokenExplosion: "prompts that blow up token usage",
	ModeUnsafe:         "prompts that trip the safety filter",
	ModeMixed:          "round-robin over every other mode",
}

// ParseMode parses a mode name case-insensitively. Dashes are accepted in
// place of underscores.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	if _, ok := modeDescriptions[m]; !ok {
		return "", fmt.Errorf("unknown traffic mode %q", s)
	}
	return m, nil
}

// Description returns a one-line summary of the mode
func (m Mode) Description() string {
	return modeDescriptions[m]
}

// AllModes lists every mode in display order
func AllModes() []Mode {
	return append(append([]Mode{}, BaseModes...), ModeMixed)
}

// modeFor returns the base mode used for the i-th request
func (m Mode) modeFor(i int) Mode {
	if m != ModeMixed {
		return m
	}
	return BaseModes[i%len(BaseModes)]
}
