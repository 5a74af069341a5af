package artifact

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ToggleMode is the state of a flag that is off, on, or on with a path.
type ToggleMode int

const (
	ToggleOff ToggleMode = iota
	ToggleOn
	TogglePath
)

// Toggle backs --bundle and --compile. It implements pflag.Value; register it
// with NoOptDefVal "true" so a bare flag turns it on and --bundle=path sets a
// custom location.
type Toggle struct {
	Mode ToggleMode
	Path string
}

// On returns an enabled toggle without a custom path.
func On() Toggle { return Toggle{Mode: ToggleOn} }

// AtPath returns a toggle enabled at path p.
func AtPath(p string) Toggle { return Toggle{Mode: TogglePath, Path: p} }

// Enabled reports whether the toggle is on, with or without a path.
func (t Toggle) Enabled() bool { return t.Mode != ToggleOff }

// PathOr returns the custom path, or fallback when none was given.
func (t Toggle) PathOr(fallback string) string {
	if t.Mode == TogglePath {
		return t.Path
	}
	return fallback
}

func (t *Toggle) String() string {
	switch t.Mode {
	case ToggleOn:
		return "true"
	case TogglePath:
		return t.Path
	default:
		return "false"
	}
}

func (t *Toggle) Set(s string) error {
	switch s {
	case "true":
		*t = On()
	case "false":
		*t = Toggle{}
	case "":
		return fmt.Errorf("empty path")
	default:
		*t = AtPath(s)
	}
	return nil
}

func (t *Toggle) Type() string { return "bool|path" }

// MarshalJSON encodes false, true or the path string.
func (t Toggle) MarshalJSON() ([]byte, error) {
	switch t.Mode {
	case ToggleOn:
		return []byte("true"), nil
	case TogglePath:
		return json.Marshal(t.Path)
	default:
		return []byte("false"), nil
	}
}

func (t *Toggle) UnmarshalJSON(data []byte) error {
	switch s := string(data); s {
	case "null", "false":
		*t = Toggle{}
		return nil
	case "true":
		*t = On()
		return nil
	}
	var p string
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("expected boolean or path, got %s", data)
	}
	if b, err := strconv.ParseBool(p); err == nil {
		if b {
			*t = On()
		} else {
			*t = Toggle{}
		}
		return nil
	}
	*t = AtPath(p)
	return nil
}
