package sequence

// Examples returns the built-in example scripts shown in the editor. Looping
// a show is the engine's loop mode, so none of the examples use control flow.
func Examples() map[string]string {
	return map[string]string{
		"simple_dmx": `# Simple DMX example
write_dmx(1, 255)  # Turn on channel 1 full brightness
sleep(2)           # Wait 2 seconds
write_dmx(1, 0)    # Turn off channel 1`,

		"dmx_steps": `# Step channel 1 up and back down
write_dmx(1, 64)
sleep(0.5)
write_dmx(1, 128)
sleep(0.5)
write_dmx(1, 255)
sleep(1)
write_dmx(1, 128)
sleep(0.5)
write_dmx(1, 0)`,

		"sound_and_light": `# Sound and light show
play_sound('intro.wav', 0.8)  # Play intro at 80% volume
write_dmx(1, 255)             # Turn on light
wait_for_sound()              # Wait for sound to finish
write_dmx(1, 0)               # Turn off light`,

		"complex_sequence": `# Complex lighting sequence
# Fade up channels 1-4
write_dmx(1, 64)
write_dmx(2, 128)
write_dmx(3, 192)
write_dmx(4, 255)
sleep(1)

# Flash channel 1 with music
play_sound('music.mp3', 1.0)
write_dmx(1, 255)
sleep(0.1)
write_dmx(1, 0)
sleep(0.1)
write_dmx(1, 255)
sleep(0.1)
write_dmx(1, 0)
stop_sound()

# Fade all to black
write_dmx(1, 0)
write_dmx(2, 0)
write_dmx(3, 0)
write_dmx(4, 0)`,
	}
}
