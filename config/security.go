package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/ringbuf/errors"
)

// Limits applied to config input before it is decoded. A ringpipe config is a
// few hundred bytes and five levels deep, so these leave ample headroom.
const (
	maxConfigBytes = 1 << 20
	maxNesting     = 32
	maxYAMLAliases = 16
	maxEnvValue    = 4096
	maxPathLen     = 4096
)

// fileFormat is the decoder a config file is read with.
type fileFormat int

const (
	formatJSON fileFormat = iota
	formatYAML
)

// formatOf selects the decoder from the file extension.
func formatOf(path string) (fileFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("only JSON or YAML config files are supported: %s", path)
	}
}

// checkPath rejects empty and overlong paths, paths that climb out of the
// working directory and extensions no decoder handles.
func checkPath(path string) (fileFormat, error) {
	if path == "" {
		return 0, stderrors.New("empty config path")
	}
	if len(path) > maxPathLen {
		return 0, fmt.Errorf("config path longer than %d bytes", maxPathLen)
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("resolve config path: %w", err)
	}

	if filepath.IsAbs(path) {
		if strings.Contains(filepath.ToSlash(abs), "..") {
			return 0, fmt.Errorf("path traversal not allowed: %s", path)
		}
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return 0, fmt.Errorf("resolve working directory: %w", err)
		}
		if rel, err := filepath.Rel(cwd, abs); err != nil || strings.HasPrefix(rel, "..") {
			return 0, fmt.Errorf("path traversal not allowed: %s leaves the working directory", path)
		}
	}

	return formatOf(path)
}

// readConfigFile reads a regular config file of bounded size. A file that does
// not exist reports errors.ErrConfigNotFound.
func readConfigFile(path string) ([]byte, fileFormat, error) {
	format, err := checkPath(path)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid config path: %w", err)
	}

	info, err := os.Stat(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, 0, fmt.Errorf("%w: %s", errors.ErrConfigNotFound, path)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigBytes {
		return nil, 0, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), maxConfigBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read config file: %w", err)
	}
	return data, format, nil
}

// writeConfigFile writes data owner-readable only.
func writeConfigFile(path string, data []byte) error {
	if _, err := checkPath(path); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	if len(data) > maxConfigBytes {
		return fmt.Errorf("config is %d bytes, limit is %d", len(data), maxConfigBytes)
	}
	return os.WriteFile(path, data, 0600)
}

// checkEnvValue bounds an override taken from the environment.
func checkEnvValue(key, value string) error {
	if len(value) > maxEnvValue {
		return fmt.Errorf("%s is %d bytes, limit is %d", key, len(value), maxEnvValue)
	}
	if strings.IndexByte(value, 0) >= 0 {
		return fmt.Errorf("%s contains a NUL byte", key)
	}
	return nil
}

// checkJSONNesting scans data outside string literals and rejects documents
// nested deeper than maxNesting or with unbalanced brackets.
func checkJSONNesting(data []byte) error {
	depth := 0
	inString := false
	escaped := false

	for _, b := range data {
		switch {
		case escaped:
			escaped = false
		case inString && b == '\\':
			escaped = true
		case b == '"':
			inString = !inString
		case inString:
		case b == '{' || b == '[':
			depth++
			if depth > maxNesting {
				return fmt.Errorf("JSON nesting too deep: more than %d levels", maxNesting)
			}
		case b == '}' || b == ']':
			depth--
			if depth < 0 {
				return stderrors.New("malformed JSON: unbalanced brackets")
			}
		}
	}

	if depth != 0 {
		return fmt.Errorf("malformed JSON: %d unclosed brackets", depth)
	}
	return nil
}

// parseYAML parses data into a node tree and bounds its nesting and alias
// count before anything is decoded from it. Aliases are counted, not followed,
// so a billion-laughs document is rejected without being expanded.
func parseYAML(data []byte) (*yaml.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	aliases := 0
	var walk func(n *yaml.Node, depth int) error
	walk = func(n *yaml.Node, depth int) error {
		if depth > maxNesting {
			return fmt.Errorf("YAML nesting too deep: more than %d levels", maxNesting)
		}
		if n.Kind == yaml.AliasNode {
			aliases++
			if aliases > maxYAMLAliases {
				return fmt.Errorf("YAML uses more than %d aliases", maxYAMLAliases)
			}
			return nil
		}
		for _, child := range n.Content {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	// The document node wraps the top-level mapping, so it does not count.
	if err := walk(&root, -1); err != nil {
		return nil, err
	}
	return &root, nil
}
