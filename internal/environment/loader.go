package environment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type globalSettings struct {
	AllowedEnvironments []string `json:"AllowedEnvironments"`
}

type envSettings struct {
	ServerName       string            `json:"ServerName"`
	ConnectionString string            `json:"ConnectionString"`
	Headers          map[string]string `json:"Headers"`
}

// Load reads root/settings.json for the allowed-environment set, then
// root/<Env>/settings.json for each one. An environment named in the
// allow-list but missing its own settings.json is logged and skipped: it
// remains in Allowed() (so gate checks still see it named) but Lookup fails,
// which sqlexec and the webhook ingester treat as a 503 for that
// environment; proxy calls go ahead without environment headers.
func Load(root string, logger log.Logger) (*Registry, error) {
	globalRaw, err := os.ReadFile(filepath.Join(root, "settings.json"))
	if err != nil {
		return nil, fmt.Errorf("read environments settings.json: %w", err)
	}
	var g globalSettings
	if err := json.Unmarshal(globalRaw, &g); err != nil {
		return nil, fmt.Errorf("parse environments settings.json: %w", err)
	}

	reg := &Registry{
		allowed: make(map[string]bool, len(g.AllowedEnvironments)),
		byName:  make(map[string]*Settings, len(g.AllowedEnvironments)),
	}
	for _, name := range g.AllowedEnvironments {
		reg.allowed[name] = true

		path := filepath.Join(root, name, "settings.json")
		raw, err := os.ReadFile(path)
		if err != nil {
			level.Warn(logger).Log("msg", "environment missing settings.json, calls to it will fail", "environment", name, "err", err)
			continue
		}
		var es envSettings
		if err := json.Unmarshal(raw, &es); err != nil {
			level.Error(logger).Log("msg", "invalid environment settings.json, skipping", "environment", name, "err", err)
			continue
		}
		reg.byName[name] = &Settings{
			Name:             name,
			ServerName:       es.ServerName,
			ConnectionString: es.ConnectionString,
			Headers:          es.Headers,
		}
	}
	return reg, nil
}
