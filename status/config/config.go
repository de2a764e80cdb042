package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

type ServerConfig struct {
	// URL is the node admin server URL.
	URL string `json:"url"`

	// Timeout is the timeout for each status request.
	Timeout time.Duration `json:"timeout"`
}

func (c *ServerConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("missing url")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("missing timeout")
	}
	return nil
}

type Config struct {
	Server ServerConfig `json:"server"`
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.Server.URL,
		"server.url",
		"http://localhost:7947",
		`
Node URL. This URL should point to the node admin port.
`,
	)
	fs.DurationVar(
		&c.Server.Timeout,
		"server.timeout",
		time.Second*15,
		`
Timeout for each status request.
`,
	)
}
