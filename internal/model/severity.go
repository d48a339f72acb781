package model

import "strings"

// Severity is the level attached to every log record.
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityOrder returns every known level from least to most severe.
// A fresh slice is returned so callers may keep it in their own config.
func SeverityOrder() []Severity {
	return []Severity{
		SeverityDebug,
		SeverityInfo,
		SeverityWarning,
		SeverityError,
		SeverityCritical,
	}
}

// Rank returns the numeric weight of a severity, spaced like pino levels
// (20 = DEBUG ... 60 = CRITICAL). Unknown levels rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityDebug:
		return 20
	case SeverityInfo:
		return 30
	case SeverityWarning:
		return 40
	case SeverityError:
		return 50
	case SeverityCritical:
		return 60
	default:
		return 0
	}
}

// Valid reports whether s is one of the five known levels.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

func (s Severity) String() string {
	return string(s)
}

// severityAliases maps common short spellings onto the five levels.
var severityAliases = map[string]Severity{
	"DBG":         SeverityDebug,
	"DEBU":        SeverityDebug,
	"INF":         SeverityInfo,
	"INFORMATION": SeverityInfo,
	"WARN":        SeverityWarning,
	"WRN":         SeverityWarning,
	"ERR":         SeverityError,
	"ERRO":        SeverityError,
	"CRIT":        SeverityCritical,
	"FATAL":       SeverityCritical,
}

// ParseSeverity normalizes case, surrounding whitespace and common aliases
// (WARN, ERR, FATAL, ...) and reports whether the result is a known level.
// Unknown input is returned upper-cased so it can be quoted in errors.
func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	if alias, ok := severityAliases[string(s)]; ok {
		return alias, true
	}
	return s, s.Valid()
}
