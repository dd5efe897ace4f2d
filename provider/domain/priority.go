package domain

import (
	"fmt"
	"strings"
)

// Priority é a classe de prioridade de uma chamada ao provedor.
//
// A ordem importa: Interactive > Standard > Background.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityStandard
	PriorityInteractive
)

func (p Priority) String() string {
	switch p {
	case PriorityBackground:
		return "background"
	case PriorityStandard:
		return "standard"
	case PriorityInteractive:
		return "interactive"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reporta se p é uma das prioridades conhecidas.
func (p Priority) Valid() bool {
	return p >= PriorityBackground && p <= PriorityInteractive
}

// ParsePriority aceita o nome (case-insensitive). Vazio vira Standard.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return PriorityStandard, nil
	case "background":
		return PriorityBackground, nil
	case "interactive":
		return PriorityInteractive, nil
	}
	return PriorityStandard, NewValidationError(fmt.Sprintf("unknown priority %q", s))
}
