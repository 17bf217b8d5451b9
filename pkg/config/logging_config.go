package config

// LoggingConfig selects the zap encoder and sink. The TUI redirects an empty
// OutputFile to collab.log in the data dir so logs do not tear the screen.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn or error
	Format     string `yaml:"format"` // console or json
	OutputFile string `yaml:"output_file"`
}
