package signal

import (
	"fmt"
	"strings"
)

// Severity is the coarse priority class of an emergency. It drives both the
// FSM trigger thresholds and arbitration ranking. The zero value is invalid;
// ParseSeverity is the only way to obtain a Severity from user input, so the
// FSM and the conflict resolver can never disagree on what counts as valid.
type Severity int

const (
	severityInvalid Severity = iota
	SeverityLow
	SeverityModerate
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "LOW",
	SeverityModerate: "MODERATE",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

// ParseSeverity normalizes and validates a severity string.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return SeverityLow, nil
	case "MODERATE":
		return SeverityModerate, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	}
	return severityInvalid, fmt.Errorf("invalid severity %q; must be LOW, MODERATE, HIGH or CRITICAL", s)
}

func errInvalidSeverity(s Severity) error {
	return fmt.Errorf("invalid severity value %d; use ParseSeverity", int(s))
}

// Valid reports whether s is one of the four recognized classes.
func (s Severity) Valid() bool {
	_, ok := severityNames[s]
	return ok
}

// Rank returns the arbitration rank; higher wins.
func (s Severity) Rank() int {
	return int(s)
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "INVALID"
}

// MarshalJSON renders the severity as its canonical name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts any spelling ParseSeverity accepts.
func (s *Severity) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	sev, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}
