package log

import (
	"fmt"

	"github.com/spf13/pflag"
)

type Config struct {
	// Level is the minimum record level to log. Either 'debug', 'info', 'warn'
	// or 'error'.
	Level string `json:"level" yaml:"level"`

	// Subsystems enables debug logging on log records whose 'subsystem'
	// matches one of the given values (overrides `Level`).
	Subsystems []string `json:"subsystems" yaml:"subsystems"`

	// Format is the record encoding. Either 'json' or 'console'.
	Format string `json:"format" yaml:"format"`

	// Output is where records are written. Either 'stderr', 'stdout' or a
	// file path.
	Output string `json:"output" yaml:"output"`
}

func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: "stderr",
	}
}

func (c *Config) Validate() error {
	if c.Level == "" {
		return fmt.Errorf("missing level")
	}
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case formatJSON, formatConsole:
	case "":
		return fmt.Errorf("missing format")
	default:
		return fmt.Errorf("unsupported format: %s", c.Format)
	}
	if c.Output == "" {
		return fmt.Errorf("missing output")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.Level,
		"log.level",
		c.Level,
		`
Minimum log level to output.

The available levels are 'debug', 'info', 'warn' and 'error'.`,
	)
	fs.StringSliceVar(
		&c.Subsystems,
		"log.subsystems",
		c.Subsystems,
		`
Each log has a 'subsystem' field where the log occured.

'--log.subsystems' enables all log levels for those given subsystems. This
can be useful to debug a particular subsystem without having to enable all
debug logs.

Such as you can enable probe logs with '--log.subsystems swim'.`,
	)
	fs.StringVar(
		&c.Format,
		"log.format",
		c.Format,
		`
Log record encoding. Either 'json' or 'console'.`,
	)
	fs.StringVar(
		&c.Output,
		"log.output",
		c.Output,
		`
Where to write logs. Either 'stderr', 'stdout' or a file path.

When running a simulation the group state is written to stdout, so logs
should be written to stderr or a file.`,
	)
}
