package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// identityKeys are argument names (normalized) that could name whose data a
// call affects. They are never read from model output.
var identityKeys = map[string]struct{}{
	"userid":    {},
	"user":      {},
	"uid":       {},
	"ownerid":   {},
	"owner":     {},
	"callerid":  {},
	"caller":    {},
	"accountid": {},
	"tenantid":  {},
	"identity":  {},
	"principal": {},
	"subject":   {},
	"sub":       {},
	"email":     {},
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, "_", "")
	key = strings.ReplaceAll(key, "-", "")
	return key
}

// StripIdentity returns a copy of args without identity-shaped keys and the
// list of keys it removed. The input map is not modified.
func StripIdentity(args map[string]any) (map[string]any, []string) {
	clean := make(map[string]any, len(args))
	var removed []string
	for k, v := range args {
		if _, ok := identityKeys[normalizeKey(k)]; ok {
			removed = append(removed, k)
			continue
		}
		clean[k] = v
	}
	return clean, removed
}

// ParseArguments decodes the raw JSON arguments of a tool call. An empty
// string is an empty object.
func ParseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

type argError struct{ msg string }

func (e *argError) Error() string { return e.msg }

func missingArg(name string) error {
	return &argError{msg: fmt.Sprintf("Missing required argument: %s", name)}
}

func invalidArg(name, want string) error {
	return &argError{msg: fmt.Sprintf("Invalid argument %s: expected %s", name, want)}
}

// intArg reads an integer argument. JSON numbers with no fractional part and
// numeric strings are accepted.
func intArg(args map[string]any, name string) (int64, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, missingArg(name)
	}

	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
			return int64(f), nil
		}
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < math.MaxInt64 {
			return int64(n), nil
		}
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, nil
		}
	}
	return 0, invalidArg(name, "an integer")
}

// stringArg reads a string argument; present reports whether it was supplied.
func stringArg(args map[string]any, name string) (value string, present bool, err error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, invalidArg(name, "a string")
	}
	return s, true, nil
}

// boolArg reads a boolean argument. Only a JSON true/false or the strings
// "true"/"false" are accepted.
func boolArg(args map[string]any, name string) (value bool, present bool, err error) {
	v, ok := args[name]
	if !ok || v == nil {
		return false, false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, true, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return true, true, nil
		case "false":
			return false, true, nil
		}
	}
	return false, true, invalidArg(name, "a boolean")
}
