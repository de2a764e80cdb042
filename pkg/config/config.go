package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config configures where the YAML configuration file is loaded from.
type Config struct {
	// Path is the path of the YAML configuration file. If empty, no file is
	// loaded and only flags apply.
	Path string

	// ExpandEnv enables replacing environment variable references in the
	// configuration file.
	ExpandEnv bool
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.Path,
		"config.path",
		"",
		`
YAML config file path.`,
	)
	fs.BoolVar(
		&c.ExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replaces references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)
}

// Load loads the YAML configuration at path into conf.
//
// Unknown fields are rejected. Fields not in the file keep their existing
// value, so conf should be populated with defaults first.
func Load(conf interface{}, path string, expandEnv bool) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %s: %w", path, err)
	}

	if expandEnv {
		buf = []byte(expand(string(buf)))
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	if err := dec.Decode(conf); err != nil {
		return fmt.Errorf("parse config: %s: %w", path, err)
	}

	return nil
}

// envRe matches $VAR, ${VAR} and ${VAR:default}.
var envRe = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(?::([^}]*))?\}|\$([a-zA-Z_][a-zA-Z0-9_]*)`)

func expand(s string) string {
	return envRe.ReplaceAllStringFunc(s, func(ref string) string {
		groups := envRe.FindStringSubmatch(ref)
		if groups[3] != "" {
			return os.Getenv(groups[3])
		}

		v, ok := os.LookupEnv(groups[1])
		if !ok || v == "" {
			return groups[2]
		}
		return v
	})
}
