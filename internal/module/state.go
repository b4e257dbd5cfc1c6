package module

import "fmt"

// State is a module's position in the boot lifecycle. States only move
// forward.
type State int

const (
	StateDeclared State = iota
	StateLoaded
	StateConfigMerged
	StateSettingUp
	StateSetUp
	StateStarting
	StateStarted
	StateFailed
)

var stateNames = map[State]string{
	StateDeclared:     "declared",
	StateLoaded:       "loaded",
	StateConfigMerged: "config-merged",
	StateSettingUp:    "setting-up",
	StateSetUp:        "set-up",
	StateStarting:     "starting",
	StateStarted:      "started",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateStarted || s == StateFailed
}

// MarshalText lets states render by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("module: unknown state %q", text)
}
