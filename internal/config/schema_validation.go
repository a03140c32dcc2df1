package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	cyclerschema "github.com/Paintersrp/cycler/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	schemaOnce   sync.Once
	configSchema *jsonschema.Schema
	schemaErr    error
)

// fieldHints describe the accepted shape of each top-level key and are
// appended to schema problems reported against that key.
var fieldHints = map[string]string{
	"time":         `a duration such as "10s", "1h20min" or "2 days", or a whole number of seconds`,
	"command":      `a non-empty list of strings such as ["./server", "--port", "8080"]`,
	"restart":      "true or false",
	"quiet":        "true or false",
	"leaveRunning": "true or false",
	"verbose":      "0 (normal), 1 (verbose) or 2 (debug)",
	"logFormat":    `"text" or "json"`,
	"metricsAddr":  `a listen address such as "127.0.0.1:9464"`,
	"workdir":      "a directory path",
	"envFromFile":  "a path to a KEY=VALUE file",
	"env":          "a map of NAME: value with string, number or boolean values",
}

func loadConfigSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("cycler.v1.json", bytes.NewReader(cyclerschema.CyclerV1Schema)); err != nil {
			schemaErr = fmt.Errorf("add config schema resource: %w", err)
			return
		}
		configSchema, schemaErr = compiler.Compile("cycler.v1.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", schemaErr)
		}
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	return configSchema, nil
}

// validateAgainstSchema checks the raw YAML document before it is decoded.
// Violations come back as a *ValidationError with one problem per offending
// key, in the same form Validate uses for flag and environment mistakes.
func validateAgainstSchema(doc map[string]any) error {
	schema, err := loadConfigSchema()
	if err != nil {
		return fmt.Errorf("load config schema: %w", err)
	}

	normalized, err := normalizeForSchema(doc)
	if err != nil {
		return fmt.Errorf("prepare config for schema validation: %w", err)
	}

	err = schema.Validate(normalized)
	if err == nil {
		return nil
	}
	var vErr *jsonschema.ValidationError
	if !errors.As(err, &vErr) {
		return fmt.Errorf("validate config: %w", err)
	}
	return &ValidationError{Problems: schemaProblems(vErr, doc, knownFields(schema))}
}

func normalizeForSchema(doc map[string]any) (any, error) {
	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)
	if err := encoder.Encode(doc); err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func knownFields(schema *jsonschema.Schema) []string {
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// schemaProblems flattens the validator's cause tree into one message per
// leaf, sorted by location and deduplicated.
func schemaProblems(root *jsonschema.ValidationError, doc map[string]any, known []string) []error {
	var msgs []string
	var walk func(*jsonschema.ValidationError)
	walk = func(err *jsonschema.ValidationError) {
		if len(err.Causes) > 0 {
			for _, cause := range err.Causes {
				walk(cause)
			}
			return
		}
		msgs = append(msgs, describeLeaf(err, doc, known)...)
	}
	walk(root)

	slices.Sort(msgs)
	msgs = slices.Compact(msgs)
	problems := make([]error, 0, len(msgs))
	for _, msg := range msgs {
		problems = append(problems, errors.New(msg))
	}
	return problems
}

func describeLeaf(err *jsonschema.ValidationError, doc map[string]any, known []string) []string {
	if err.InstanceLocation == "" && strings.HasSuffix(err.KeywordLocation, "/additionalProperties") {
		var msgs []string
		for key := range doc {
			if !slices.Contains(known, key) {
				msgs = append(msgs, fmt.Sprintf("%s: unknown field (known fields: %s)", key, strings.Join(known, ", ")))
			}
		}
		if len(msgs) > 0 {
			return msgs
		}
	}

	location := formatInstanceLocation(err.InstanceLocation)
	msg := fmt.Sprintf("%s: %s", location, err.Message)
	if hint, ok := fieldHints[topLevelKey(err.InstanceLocation)]; ok {
		msg += "; expected " + hint
	}
	return []string{msg}
}

func topLevelKey(ptr string) string {
	key, _, _ := strings.Cut(strings.TrimPrefix(ptr, "/"), "/")
	return strings.ReplaceAll(strings.ReplaceAll(key, "~1", "/"), "~0", "~")
}

func formatInstanceLocation(ptr string) string {
	if ptr == "" || ptr == "/" {
		return "config"
	}
	var b strings.Builder
	for _, segment := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		decoded := strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(decoded); err == nil {
			fmt.Fprintf(&b, "[%s]", decoded)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(decoded)
	}
	if b.Len() == 0 {
		return "config"
	}
	return b.String()
}
