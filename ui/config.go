package ui

// Config contains player-specific configuration.
type Config struct {
	// Path of the narrated file, empty when reading stdin.
	Path string

	// MaxWidth caps the rendered width. Zero uses the terminal width.
	MaxWidth int

	// Watch keeps the player open after narration ends so reloads can
	// start it again.
	Watch bool

	// InputTTY reads keys from the terminal when stdin carried the script.
	InputTTY bool

	// For debugging the UI
	TickInterval int  `env:"NARRATOR_UI_TICK_MS" envDefault:"100"`
	AltScreen    bool `env:"NARRATOR_UI_ALT_SCREEN" envDefault:"false"`
}
