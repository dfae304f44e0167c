package model

import (
	"fmt"
	"strings"
)

// Choice is a side of a binary market. The zero value doubles as the
// Unresolved outcome of a market that has not been settled yet.
type Choice uint8

const (
	ChoiceUnresolved Choice = 0
	ChoiceYes        Choice = 1
	ChoiceNo         Choice = 2
)

// Valid reports whether c is a bettable side (Yes or No).
func (c Choice) Valid() bool {
	return c == ChoiceYes || c == ChoiceNo
}

// Opposite returns the other side. Unresolved has no opposite.
func (c Choice) Opposite() Choice {
	switch c {
	case ChoiceYes:
		return ChoiceNo
	case ChoiceNo:
		return ChoiceYes
	}
	return ChoiceUnresolved
}

func (c Choice) String() string {
	switch c {
	case ChoiceUnresolved:
		return "UNRESOLVED"
	case ChoiceYes:
		return "YES"
	case ChoiceNo:
		return "NO"
	}
	return fmt.Sprintf("CHOICE(%d)", uint8(c))
}

// ParseChoice accepts "YES"/"NO"/"UNRESOLVED" (any case) and the numeric
// forms "1"/"2"/"0".
func ParseChoice(s string) (Choice, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES", "1":
		return ChoiceYes, nil
	case "NO", "2":
		return ChoiceNo, nil
	case "UNRESOLVED", "0":
		return ChoiceUnresolved, nil
	}
	return 0, fmt.Errorf("model: unknown choice %q", s)
}

func (c Choice) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Choice) UnmarshalText(b []byte) error {
	parsed, err := ParseChoice(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
