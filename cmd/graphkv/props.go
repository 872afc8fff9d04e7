package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orneryd/graphkv/pkg/storage"
)

// parseProps parses key=value flags into a property map. Later keys win.
func parseProps(raw []string) (map[string]storage.Value, error) {
	props := make(map[string]storage.Value, len(raw))
	for _, kv := range raw {
		key, val, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("property %q: expected key=value", kv)
		}
		props[key] = parseValue(val)
	}
	return props, nil
}

// parseValue reads an integer, float or boolean literal, falling back to a string.
// A double-quoted value is always a string.
func parseValue(s string) storage.Value {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		if unquoted, err := strconv.Unquote(s); err == nil {
			return storage.NewString(unquoted)
		}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return storage.NewInt(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return storage.NewFloat(f)
	}
	switch s {
	case "true":
		return storage.NewBool(true)
	case "false":
		return storage.NewBool(false)
	}
	return storage.NewString(s)
}

// parseIndexFlags parses name[:property] index declarations.
func parseIndexFlags(specs []string) ([]storage.IndexDef, error) {
	defs := make([]storage.IndexDef, 0, len(specs))
	for _, spec := range specs {
		name, property, _ := strings.Cut(spec, ":")
		if name == "" {
			return nil, fmt.Errorf("index %q: missing name", spec)
		}
		defs = append(defs, storage.IndexDef{Name: name, Property: property})
	}
	return defs, nil
}
