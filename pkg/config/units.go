package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Day is the unit for retention settings.
const Day = 24 * time.Hour

// Duration is a time.Duration in YAML. It accepts Go duration strings, a "d"
// suffix for days, and bare numbers meaning seconds ("reconnect_interval: 1.5").
type Duration time.Duration

var errNegativeDuration = errors.New("duration must not be negative")

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML writes whole days as "Nd" and everything else in Go syntax.
func (d Duration) MarshalYAML() (interface{}, error) {
	td := time.Duration(d)
	if td >= Day && td%Day == 0 {
		return strconv.FormatInt(int64(td/Day), 10) + "d", nil
	}
	return td.String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ParseDuration parses s. Empty input is zero.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var dur time.Duration
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		dur = time.Duration(secs * float64(time.Second))
	} else if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		dur = time.Duration(n * float64(Day))
	} else {
		dur, err = time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
	}

	if dur < 0 {
		return 0, errNegativeDuration
	}
	return dur, nil
}
