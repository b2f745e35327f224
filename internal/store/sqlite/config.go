package sqlite

import (
	"fmt"

	"github.com/loykin/funcprov/internal/constants"
)

type Config struct {
	Path string `mapstructure:"path"`
}

func (c *Config) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"path": c.Path,
	}
}

// dsnForPath builds a modernc.org/sqlite DSN that waits on a locked database instead of failing.
func dsnForPath(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, constants.DefaultSQLiteBusyTimeoutMS)
}
