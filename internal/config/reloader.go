package config

import (
	"bytes"
	"errors"
	"log/slog"
)

// Reloader re-reads the rule file on demand and keeps the last valid rules
// when a later edit breaks the file.
type Reloader struct {
	path   string
	logger *slog.Logger

	current *Config
	lastRaw []byte
	lastBad []byte
	loaded  bool
}

// NewReloader creates a reloader for the file at path.
func NewReloader(path string, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{path: path, logger: logger}
}

// Reload returns the rules to use for the next cycle. A missing file yields
// an empty rule set. An invalid file is an error only if nothing has ever
// loaded; afterwards it is logged and the previous rules are returned.
func (r *Reloader) Reload() (*Config, error) {
	res, err := LoadFromPath(r.path)
	switch {
	case err == nil:
		if !r.loaded || !bytes.Equal(res.Raw, r.lastRaw) {
			r.logger.Info("configuration loaded", "file", res.File, "rules", len(res.Config.Rules))
			for i, rule := range res.Config.Rules {
				r.logger.Debug("rule", "index", i, "rule", rule.String())
			}
		}
		r.current = res.Config
		r.lastRaw = res.Raw
		r.lastBad = nil
		r.loaded = true
		return r.current, nil

	case errors.Is(err, ErrNoConfig):
		if !r.loaded || r.lastRaw != nil {
			r.logger.Info("no configuration file, no rules will be applied", "file", r.path)
		}
		r.current = &Config{}
		r.lastRaw = nil
		r.lastBad = nil
		r.loaded = true
		return r.current, nil

	default:
		if !r.loaded {
			return nil, err
		}
		r.logger.Warn("invalid configuration, keeping previous rules", "error", err)
		r.logRejectedDiff()
		return r.current, nil
	}
}

func (r *Reloader) logRejectedDiff() {
	_, data, err := readRuleFile(r.path)
	if err != nil || bytes.Equal(data, r.lastBad) {
		return
	}
	r.lastBad = data
	if diff := diffRules(r.lastRaw, data); diff != "" {
		r.logger.Debug("config change rejected; diff vs last valid config", "diff", diff)
	}
}
