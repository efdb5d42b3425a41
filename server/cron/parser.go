package cron

import (
	"errors"
	"fmt"
	"strings"
)

const (
	triggerSeparator  = ";"
	scheduleSeparator = ":"
	optionSeparator   = ","
	editOption        = "edit"
)

// TriggerSpec is one scheduled run: the document to apply, whether it edits an
// existing provider, and when to apply it.
type TriggerSpec struct {
	Document string `yaml:"document"`
	Edit     bool   `yaml:"edit"`
	Schedule string `yaml:"schedule"`
}

func (s TriggerSpec) String() string {
	if s.Edit {
		return s.Document + optionSeparator + editOption + scheduleSeparator + s.Schedule
	}
	return s.Document + scheduleSeparator + s.Schedule
}

// Validate checks that the spec names a document and has a parsable schedule.
func (s TriggerSpec) Validate() error {
	if strings.TrimSpace(s.Document) == "" {
		return errors.New("invalid trigger spec: missing document")
	}
	if strings.TrimSpace(s.Schedule) == "" {
		return fmt.Errorf("invalid trigger spec: missing cron schedule for %s", s.Document)
	}
	if _, err := specParser.Parse(s.Schedule); err != nil {
		return fmt.Errorf("invalid trigger spec: invalid cron expression for %s: %w", s.Document, err)
	}
	return nil
}

// ParseTriggerSpecs parses the compact command line form of a set of triggers.
// The format is: document[,edit]:cron_expression;document2:cron_expression2
//
// Example:
//
//	"/etc/goprovision/dc1.yaml:0 2 * * *;/etc/goprovision/dc1-nodes.yaml,edit:0 3 * * *"
func ParseTriggerSpecs(spec string) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	var specs []TriggerSpec
	for _, triggerStr := range strings.Split(spec, triggerSeparator) {
		triggerStr = strings.TrimSpace(triggerStr)
		if triggerStr == "" {
			continue
		}

		ts, err := parseSingleTrigger(triggerStr)
		if err != nil {
			return nil, err
		}
		specs = append(specs, ts)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in cron spec")
	}
	return specs, nil
}

func parseSingleTrigger(triggerStr string) (TriggerSpec, error) {
	target, schedule, ok := strings.Cut(triggerStr, scheduleSeparator)
	if !ok {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: expected format 'document:cron', got '%s'", triggerStr)
	}

	parts := strings.Split(target, optionSeparator)
	ts := TriggerSpec{
		Document: strings.TrimSpace(parts[0]),
		Schedule: strings.TrimSpace(schedule),
	}
	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case editOption:
			ts.Edit = true
		case "":
		default:
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: unknown option '%s' in '%s'", opt, triggerStr)
		}
	}

	if err := ts.Validate(); err != nil {
		return TriggerSpec{}, err
	}
	return ts, nil
}
