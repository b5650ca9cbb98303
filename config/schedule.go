package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"backtestCore/internal/calendar"
	"backtestCore/internal/events"
	"backtestCore/internal/ports"
)

// RuleSpec is one calendar rule as written in the schedule file.
//
//	- kind: market_open
//	  type: regular
//	  trigger: {hour: 9, minute: 30, second: 0}
//	  exclude_weekends: true
//	- kind: bar
//	  type: periodic
//	  start: "09:30"
//	  end: "16:00"
//	  frequency: 30m
type RuleSpec struct {
	Kind            string           `yaml:"kind"`
	Type            string           `yaml:"type"` // regular (default) or periodic
	Trigger         calendar.Trigger `yaml:"trigger"`
	Start           string           `yaml:"start"`
	End             string           `yaml:"end"`
	Frequency       string           `yaml:"frequency"`
	ExcludeWeekends bool             `yaml:"exclude_weekends"`
}

type scheduleFile struct {
	Snapshot string     `yaml:"snapshot"`
	Rules    []RuleSpec `yaml:"rules"`
}

// KindRule binds a built rule to the event kind it fires.
type KindRule struct {
	Kind events.Kind
	Rule calendar.Rule
}

// Schedule is the calendar of a session, built once from its definition.
type Schedule struct {
	// Snapshot is the kind on which the portfolio records NAV and leverage.
	// Empty records on every time event.
	Snapshot events.Kind
	Rules    []KindRule
}

// RuleRegistrar accepts calendar rules; the scheduler implements it.
type RuleRegistrar interface {
	RegisterRule(kind events.Kind, rule calendar.Rule) error
}

// LoadSchedule reads and builds the schedule file at path.
func LoadSchedule(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule %s: %w", path, err)
	}
	s, err := ParseSchedule(data)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", path, err)
	}
	return s, nil
}

// ParseSchedule builds a schedule from its YAML definition. Unknown fields
// are rejected.
func ParseSchedule(data []byte) (*Schedule, error) {
	var file scheduleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: invalid schedule yaml: %v", ports.ErrConfiguration, err)
	}

	s := &Schedule{Snapshot: events.Kind(file.Snapshot)}
	seen := make(map[events.Kind]bool, len(file.Rules))
	for i, spec := range file.Rules {
		kind := events.Kind(spec.Kind)
		if kind == "" {
			return nil, fmt.Errorf("rule %d: %w: kind must be set", i+1, ports.ErrInvalidRule)
		}
		if seen[kind] {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, kind, ports.ErrDuplicateKind)
		}
		seen[kind] = true

		rule, err := spec.build()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, kind, err)
		}
		s.Rules = append(s.Rules, KindRule{Kind: kind, Rule: rule})
	}

	if s.Snapshot != "" && !seen[s.Snapshot] {
		return nil, fmt.Errorf("snapshot kind %q: %w", s.Snapshot, ports.ErrUnknownKind)
	}
	return s, nil
}

func (spec RuleSpec) build() (calendar.Rule, error) {
	switch strings.ToLower(spec.Type) {
	case "", "regular":
		return calendar.NewRegularRule(spec.Trigger, spec.ExcludeWeekends)
	case "periodic":
		start, err := calendar.ParseTimeOfDay(spec.Start)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		end, err := calendar.ParseTimeOfDay(spec.End)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		freq, err := time.ParseDuration(spec.Frequency)
		if err != nil {
			return nil, fmt.Errorf("%w: frequency %q: %v", ports.ErrInvalidRule, spec.Frequency, err)
		}
		return calendar.NewPeriodicRule(start, end, freq, spec.ExcludeWeekends)
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", ports.ErrInvalidRule, spec.Type)
	}
}

// Register adds every rule to r in file order.
func (s *Schedule) Register(r RuleRegistrar) error {
	for _, kr := range s.Rules {
		if err := r.RegisterRule(kr.Kind, kr.Rule); err != nil {
			return fmt.Errorf("register %s: %w", kr.Kind, err)
		}
	}
	return nil
}

// Kinds returns the scheduled kinds in file order.
func (s *Schedule) Kinds() []events.Kind {
	out := make([]events.Kind, len(s.Rules))
	for i, kr := range s.Rules {
		out[i] = kr.Kind
	}
	return out
}
