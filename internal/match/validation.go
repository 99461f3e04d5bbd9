package match

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	playerNameMinLen = 2
	playerNameMaxLen = 50
	minDurationMin   = 5
	maxDurationMin   = 300
)

// SanitizeName trims a user-entered string and collapses internal
// whitespace runs to single spaces.
func SanitizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ValidationResult is the outcome of ValidateNewMatch.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// ValidateNewMatch checks every new-match rule and collects all
// violations rather than stopping at the first. Inputs are expected to
// be sanitized already. knownTable reports whether a registry entry
// exists for the id.
func ValidateNewMatch(player1, player2, table string, maxDuration int, knownTable func(id int64) bool) ValidationResult {
	var errs []string

	errs = append(errs, validatePlayerName(player1, "player 1")...)
	errs = append(errs, validatePlayerName(player2, "player 2")...)

	if player1 != "" && player2 != "" && strings.EqualFold(player1, player2) {
		errs = append(errs, "the two players cannot have the same name")
	}

	if table == "" {
		errs = append(errs, "table is required")
	} else if id, err := strconv.ParseInt(table, 10, 64); err != nil || id <= 0 {
		errs = append(errs, "table must be a positive table id")
	} else if knownTable != nil && !knownTable(id) {
		errs = append(errs, "table is not in the table configuration")
	}

	switch {
	case maxDuration == 0:
		errs = append(errs, "match duration is required")
	case maxDuration < minDurationMin:
		errs = append(errs, fmt.Sprintf("minimum match duration is %d minutes", minDurationMin))
	case maxDuration > maxDurationMin:
		errs = append(errs, fmt.Sprintf("maximum match duration is %d minutes", maxDurationMin))
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

func validatePlayerName(name, label string) []string {
	switch {
	case name == "":
		return []string{label + " name is required"}
	case len([]rune(name)) < playerNameMinLen:
		return []string{fmt.Sprintf("%s name must be at least %d characters", label, playerNameMinLen)}
	case len([]rune(name)) > playerNameMaxLen:
		return []string{fmt.Sprintf("%s name cannot exceed %d characters", label, playerNameMaxLen)}
	}
	return nil
}

// Availability is the outcome of CheckTableAvailability.
type Availability struct {
	IsAvailable bool
	OccupiedBy  *Match
}

// CheckTableAvailability reports whether a table is free: it is
// occupied while any match other than excludeID references it with a
// status other than finished. Pass excludeID 0 to consider all matches.
func CheckTableAvailability(table int64, matches []Match, excludeID int64) Availability {
	for i := range matches {
		m := &matches[i]
		if m.Table == table && m.Status != StatusFinished && m.ID != excludeID {
			occupied := *m
			return Availability{IsAvailable: false, OccupiedBy: &occupied}
		}
	}
	return Availability{IsAvailable: true}
}
