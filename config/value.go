package config

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Value is an optional scalar setting. In the config file it may be absent/null
// (use the default), false (switched off), or a scalar value.
type Value struct {
	set bool
	off bool
	raw string
}

// Set returns a Value holding s.
func Set(s string) Value {
	return Value{set: true, raw: s}
}

// Off returns a Value that is explicitly switched off.
func Off() Value {
	return Value{set: true, off: true}
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	if node.Tag == "!!bool" {
		b, err := strconv.ParseBool(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		if !b {
			*v = Off()
			return nil
		}
		*v = Value{set: true, raw: "true"}
		return nil
	}
	*v = Set(node.Value)
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	switch {
	case !v.set:
		return nil, nil
	case v.off:
		return false, nil
	default:
		return v.raw, nil
	}
}

// IsSet reports whether the key carried a non-null value.
func (v Value) IsSet() bool { return v.set }

// IsOff reports whether the key was explicitly false.
func (v Value) IsOff() bool { return v.set && v.off }

// Present reports whether the value should produce a flag.
func (v Value) Present() bool { return v.set && !v.off && v.raw != "" }

func (v Value) String() string {
	if !v.Present() {
		return ""
	}
	return v.raw
}
