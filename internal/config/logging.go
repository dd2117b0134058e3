package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level     string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File      string `yaml:"file"`       // rotated log file used by the TUI
	DebugMode bool   `yaml:"debug_mode"` // false = the TUI writes no logs at all
}
