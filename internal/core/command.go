package core

// CommandType defines the type of control command being dispatched.
type CommandType string

const (
	CmdStartSequence  CommandType = "startSequence"
	CmdRunSequence    CommandType = "runSequence"
	CmdStopSequence   CommandType = "stopSequence"
	CmdDeleteSequence CommandType = "deleteSequence"
	CmdClearLog       CommandType = "clearLog"
	CmdAddSchedule    CommandType = "addSchedule"
	CmdRemoveSchedule CommandType = "removeSchedule"
)

// Command is the envelope for incoming control requests. It carries requests
// from the web server, the scheduler and MQTT to the agent loop; it is not
// part of the sequence command list (see the sequence package for that).
type Command struct {
	Type    CommandType
	Payload map[string]interface{}
}

// CommandChannel is the single channel that the core Agent listens to for commands.
type CommandChannel chan Command
