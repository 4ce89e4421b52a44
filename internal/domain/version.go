package domain

import "strings"

// StrategyVersion identifies the rule set a position follows.
type StrategyVersion string

const (
	Version22 StrategyVersion = "2.2"
	Version30 StrategyVersion = "3.0"
)

// ParseVersion normalizes user input such as "v3.0" or " 2.2 ".
func ParseVersion(s string) (StrategyVersion, error) {
	v := StrategyVersion(strings.TrimPrefix(strings.TrimSpace(strings.ToLower(s)), "v"))
	if !v.Supported() {
		return "", invalidf("unsupported strategy version %q", s)
	}

	return v, nil
}

// Supported reports whether the version is one the engine knows.
func (v StrategyVersion) Supported() bool {
	return v == Version22 || v == Version30
}

// Compounds reports whether profitable sells grow the allocated capital.
func (v StrategyVersion) Compounds() bool {
	return v == Version30
}

func (v StrategyVersion) String() string {
	return string(v)
}
