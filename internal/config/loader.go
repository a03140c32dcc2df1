package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file and checks it against the embedded
// schema before decoding it strictly. Relative workdir and envFromFile
// paths are resolved against the file's directory, and ${VAR} references in
// env values are expanded from the current environment. envFromFile values
// are overridden by inline env entries.
func Load(path string) (*File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	if raw != nil {
		if err := validateAgainstSchema(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", absPath, err)
		}
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var doc File
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	if doc.Time.explicit && doc.Time.Duration <= 0 {
		return nil, fmt.Errorf("%s: time: must be positive, got %s", absPath, doc.Time.Duration)
	}

	baseDir := filepath.Dir(absPath)
	if doc.Workdir != "" {
		doc.Workdir = resolveWorkdir(baseDir, os.ExpandEnv(doc.Workdir))
	}

	var fileEnv map[string]string
	if doc.EnvFromFile != "" {
		expanded := resolveWorkdir(baseDir, os.ExpandEnv(doc.EnvFromFile))
		doc.EnvFromFile = expanded
		fileEnv, err = loadEnvFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("%s: envFromFile: %w", absPath, err)
		}
	}

	merged := make(map[string]string, len(fileEnv)+len(doc.Env))
	for k, v := range fileEnv {
		merged[k] = v
	}
	for k, v := range doc.Env {
		merged[k] = os.ExpandEnv(v)
	}
	if len(merged) > 0 {
		doc.Env = merged
	} else {
		doc.Env = nil
	}

	return &doc, nil
}

func resolveWorkdir(base, workdir string) string {
	if workdir == "" {
		return base
	}
	if filepath.IsAbs(workdir) {
		return filepath.Clean(workdir)
	}
	return filepath.Clean(filepath.Join(base, workdir))
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if strings.HasPrefix(raw, "export ") {
			raw = strings.TrimSpace(raw[len("export "):])
		}
		sep := strings.IndexRune(raw, '=')
		if sep <= 0 {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		key := strings.TrimSpace(raw[:sep])
		if key == "" {
			return nil, fmt.Errorf("load env file %q: invalid key on line %d", path, lineNo)
		}
		value := strings.TrimSpace(raw[sep+1:])
		if strings.HasPrefix(value, "\"") {
			if len(value) < 2 || value[len(value)-1] != '"' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			unquoted, err := strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("load env file %q: parse value for %s on line %d: %w", path, key, lineNo, err)
			}
			value = unquoted
		} else if strings.HasPrefix(value, "'") {
			if len(value) < 2 || value[len(value)-1] != '\'' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			value = value[1 : len(value)-1]
		} else if comment := strings.IndexRune(value, '#'); comment >= 0 {
			value = strings.TrimSpace(value[:comment])
		}
		values[key] = os.ExpandEnv(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}
