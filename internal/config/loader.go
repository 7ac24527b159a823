package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoConfig is returned by LoadFromPath when the file does not exist.
var ErrNoConfig = errors.New("configuration file not found")

// Source locates a value inside a configuration file.
type Source struct {
	File   string
	Line   int
	Column int
}

// LoadResult is a successfully loaded configuration file.
type LoadResult struct {
	Config *Config
	File   string
	Raw    []byte
}

// DefaultConfigPath returns ~/.config/wintopo/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "wintopo", "config.yaml"), nil
}

// LoadFromPath reads, validates and compiles the rule file at path. A missing
// file yields an error wrapping ErrNoConfig.
func LoadFromPath(path string) (*LoadResult, error) {
	file, data, err := readRuleFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := compileRuleFile(file, data)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, File: file, Raw: data}, nil
}

// readRuleFile resolves symlinks so that error messages and the watcher
// name the file that is actually edited.
func readRuleFile(path string) (string, []byte, error) {
	file, err := filepath.Abs(path)
	if err != nil {
		return "", nil, fmt.Errorf("resolve %q: %w", path, err)
	}
	if target, err := filepath.EvalSymlinks(file); err == nil {
		file = target
	}

	data, err := os.ReadFile(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return file, nil, fmt.Errorf("%s: %w", file, ErrNoConfig)
	case err != nil:
		return file, nil, fmt.Errorf("%s: failed to read: %w", file, err)
	}
	return file, data, nil
}

func compileRuleFile(file string, data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: failed to parse yaml: %w", file, err)
	}

	// Unknown keys are almost always a typo in a rule; reject them.
	var raw RawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	positions := indexPositions(&doc, file)
	if err := raw.Validate(); err != nil {
		return nil, positions.locate(err)
	}
	cfg, err := Build(raw)
	if err != nil {
		return nil, positions.locate(err)
	}
	return cfg, nil
}

// positionIndex maps value paths such as "rules[1].geometry" to where the
// value appears in the file.
type positionIndex map[string]Source

func indexPositions(doc *yaml.Node, file string) positionIndex {
	idx := positionIndex{}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		idx.walk(doc.Content[0], file, "")
	}
	return idx
}

func (idx positionIndex) walk(node *yaml.Node, file, at string) {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 1; i < len(node.Content); i += 2 {
			key, val := node.Content[i-1].Value, node.Content[i]
			if at != "" {
				key = at + "." + key
			}
			idx[key] = Source{File: file, Line: val.Line, Column: val.Column}
			idx.walk(val, file, key)
		}
	case yaml.SequenceNode:
		for i, item := range node.Content {
			key := fmt.Sprintf("%s[%d]", at, i)
			idx[key] = Source{File: file, Line: item.Line, Column: item.Column}
			idx.walk(item, file, key)
		}
	}
}

// locate attaches the file position to a ValidationError. A missing key has
// no node of its own, so the nearest enclosing value is used.
func (idx positionIndex) locate(err error) error {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	for path := verr.Path; path != ""; {
		if src, ok := idx[path]; ok {
			verr.Source = src
			break
		}
		dot := strings.LastIndex(path, ".")
		if dot < 0 {
			break
		}
		path = path[:dot]
	}
	return verr
}
