package stack

import (
	"fmt"
	"os"
	"strings"
)

// LookupFunc resolves a variable name to its value
type LookupFunc func(name string) (string, bool)

// Interpolate expands $VAR and ${VAR} references in a compose document.
//
// Supported forms: ${VAR:-default}, ${VAR-default}, ${VAR:?message}, ${VAR?message}
// and $$ for a literal dollar sign.
func Interpolate(data []byte, lookup LookupFunc) ([]byte, error) {
	var firstErr error

	out := os.Expand(string(data), func(expr string) string {
		if expr == "$" {
			return "$"
		}

		name, op, arg := splitExpr(expr)
		if !isIdentifier(name) {
			return "$" + expr
		}

		value, set := lookup(name)
		switch op {
		case ":-":
			if value == "" {
				return arg
			}
		case "-":
			if !set {
				return arg
			}
		case ":?":
			if value == "" && firstErr == nil {
				firstErr = requiredVarError(name, arg)
			}
		case "?":
			if !set && firstErr == nil {
				firstErr = requiredVarError(name, arg)
			}
		}
		return value
	})

	if firstErr != nil {
		return nil, firstErr
	}
	return []byte(out), nil
}

// EnvLookup chains process environment lookups with fallback values
func EnvLookup(fallback map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := fallback[name]
		return v, ok
	}
}

func splitExpr(expr string) (name, op, arg string) {
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case ':':
			if i+1 < len(expr) && (expr[i+1] == '-' || expr[i+1] == '?') {
				return expr[:i], expr[i : i+2], expr[i+2:]
			}
			return expr, "", ""
		case '-', '?':
			return expr[:i], expr[i : i+1], expr[i+1:]
		}
	}
	return expr, "", ""
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func requiredVarError(name, msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return fmt.Errorf("required variable %s is missing a value", name)
	}
	return fmt.Errorf("required variable %s is missing a value: %s", name, msg)
}
