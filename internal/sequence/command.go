// Package sequence validates the show scripting DSL and persists compiled
// sequences. A script is one command per line; the compiler turns accepted
// scripts into a closed command list that the engine interprets directly, so
// no user text is ever executed as code.
package sequence

import "time"

// Op identifies one of the five script commands.
type Op string

const (
	OpWriteDMX     Op = "write_dmx"
	OpSleep        Op = "sleep"
	OpPlaySound    Op = "play_sound"
	OpWaitForSound Op = "wait_for_sound"
	OpStopSound    Op = "stop_sound"
)

// Command is one compiled script step. Only the fields belonging to the op
// are set; the compiler is the only producer.
type Command struct {
	Op      Op      `json:"op"`
	Address int     `json:"address,omitempty"`
	Value   int     `json:"value,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
	File    string  `json:"file,omitempty"`
	Volume  float64 `json:"volume,omitempty"`
}

// Sequence binds a name to the literal script source and its compiled
// command list. Immutable once persisted.
type Sequence struct {
	Name     string    `json:"name"`
	Source   string    `json:"source"`
	Commands []Command `json:"commands"`
	SavedAt  time.Time `json:"saved_at"`
}
