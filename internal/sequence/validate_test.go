package sequence

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDMXRangeChecks(t *testing.T) {
	tests := []struct {
		script string
		errors int
	}{
		{"write_dmx(0, 0)", 1},
		{"write_dmx(513, 0)", 1},
		{"write_dmx(1, 256)", 1},
		{"write_dmx(1, -1)", 1},
		{"write_dmx(1, 255)", 0},
		{"write_dmx(512, 0)", 0},
		{"write_dmx(0, 256)", 2},
	}
	for _, tt := range tests {
		t.Run(tt.script, func(t *testing.T) {
			result := Validate(tt.script)
			assert.Len(t, result.Errors, tt.errors)
			assert.Empty(t, result.Warnings)
		})
	}
}

func TestWriteDMXArity(t *testing.T) {
	result := Validate("write_dmx(1)")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "exactly 2 arguments")

	result = Validate("write_dmx(1, 2, 3)")
	require.Len(t, result.Errors, 1)
}

func TestSleepBounds(t *testing.T) {
	result := Validate("sleep(-1)")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "cannot be negative")

	result = Validate("sleep(3601)")
	assert.Empty(t, result.Errors, "long sleep compiles")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "very long")

	result = Validate("sleep(0)")
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)

	result = Validate("sleep(0.5)")
	assert.Empty(t, result.Errors)
}

func TestPlaySoundValidation(t *testing.T) {
	assert.True(t, Validate("play_sound('intro.wav')").Valid())
	assert.True(t, Validate(`play_sound("intro.wav", 0.8)`).Valid())

	result := Validate("play_sound(42)")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "must be a string")

	result = Validate("play_sound('intro.wav', 1.5)")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "between 0.0 and 1.0")

	result = Validate("play_sound()")
	require.Len(t, result.Errors, 1)
}

func TestZeroArgCommands(t *testing.T) {
	assert.True(t, Validate("wait_for_sound()").Valid())
	assert.True(t, Validate("stop_sound()").Valid())
	assert.False(t, Validate("wait_for_sound(1)").Valid())
	assert.False(t, Validate("stop_sound('x')").Valid())
}

func TestInvalidCallShape(t *testing.T) {
	for _, script := range []string{
		"write_dmx 1, 255",
		"for i in range(10):",
		"write_dmx(1, 255) write_dmx(2, 0)",
		"1234",
	} {
		result := Validate(script)
		require.Len(t, result.Errors, 1, script)
		assert.Contains(t, result.Errors[0].Message, "Invalid function call")
	}
}

func TestUnknownFunctionWarns(t *testing.T) {
	result := Validate("fade_all(255)")
	assert.Empty(t, result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "Unknown function")

	// Unknown lines are preserved in source but not compiled.
	commands, _ := Compile("fade_all(255)\nwrite_dmx(1, 10)")
	require.Len(t, commands, 1)
	assert.Equal(t, OpWriteDMX, commands[0].Op)
}

func TestCommentsAndBlankLines(t *testing.T) {
	script := `# a show
write_dmx(1, 255)  # full on

# done
sleep(1)
`
	commands, result := Compile(script)
	assert.True(t, result.Valid())
	require.Len(t, commands, 2)
	assert.Equal(t, OpWriteDMX, commands[0].Op)
	assert.Equal(t, OpSleep, commands[1].Op)
}

func TestHashInsideStringLiteral(t *testing.T) {
	commands, result := Compile("play_sound('track #1.wav')")
	require.True(t, result.Valid())
	require.Len(t, commands, 1)
	assert.Equal(t, "track #1.wav", commands[0].File)
}

func TestLineNumbersInIssues(t *testing.T) {
	script := "write_dmx(1, 255)\n\nsleep(-1)\nwrite_dmx(600, 0)"
	result := Validate(script)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 3, result.Errors[0].Line)
	assert.Equal(t, 4, result.Errors[1].Line)
	assert.Equal(t, fmt.Sprintf("Line %d: %s", 3, result.Errors[0].Message), result.Errors[0].String())
}

func TestValidationIsDeterministic(t *testing.T) {
	script := "write_dmx(0, 300)\nsleep(5000)\nmystery()\nbad line"
	first := Validate(script)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Validate(script))
	}
}

func TestCompileDefaults(t *testing.T) {
	commands, result := Compile("play_sound('a.wav')")
	require.True(t, result.Valid())
	assert.Equal(t, 1.0, commands[0].Volume, "volume defaults to full")
}

func TestCompileAllOrNothing(t *testing.T) {
	commands, result := Compile("write_dmx(1, 255)\nsleep(-1)")
	assert.False(t, result.Valid())
	assert.Nil(t, commands)
}
