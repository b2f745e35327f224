package static

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// Config selects where a pre-issued token comes from. Exactly one source is used, in order:
// Value, ValueFromEnv, ValueFromFile.
type Config struct {
	Value         string `mapstructure:"value"`
	ValueFromEnv  string `mapstructure:"value_from_env"`
	ValueFromFile string `mapstructure:"value_from_file"`
}

// Method returns the configured token. Fs defaults to the OS filesystem.
type Method struct {
	C  Config
	Fs afero.Fs
}

func (m Method) Acquire(_ context.Context) (string, error) {
	if v := strings.TrimSpace(m.C.Value); v != "" {
		return v, nil
	}
	if name := strings.TrimSpace(m.C.ValueFromEnv); name != "" {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return "", fmt.Errorf("static: environment variable %s is empty", name)
		}
		return v, nil
	}
	if path := strings.TrimSpace(m.C.ValueFromFile); path != "" {
		fs := m.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		b, err := afero.ReadFile(fs, path)
		if err != nil {
			return "", fmt.Errorf("static: read token file: %w", err)
		}
		v := strings.TrimSpace(string(b))
		if v == "" {
			return "", fmt.Errorf("static: token file %s is empty", path)
		}
		return v, nil
	}
	return "", errors.New("static: one of value, value_from_env or value_from_file is required")
}
