package admin

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/evw88/nifayatech/internal/metadata"
)

// Mode distinguishes create from update semantics in validation and payload
// building.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// FieldRules is the derived validation ruleset for one form field.
type FieldRules struct {
	Required  bool
	MinLength int
	Kind      metadata.FieldKind
}

// BuildRules derives per-field validation constraints from field metadata.
// Passwords are required with a minimum length on create but optional on
// update, so a blank password leaves the stored hash unchanged downstream.
func BuildRules(m *metadata.ModuleDefinition, mode Mode) map[string]FieldRules {
	rules := make(map[string]FieldRules)
	for _, name := range m.Form {
		f := m.GetField(name)
		if f == nil || f.Readonly {
			continue
		}
		if f.Kind == metadata.KindPassword {
			rules[name] = FieldRules{
				Required:  mode == ModeCreate,
				MinLength: 6,
				Kind:      f.Kind,
			}
			continue
		}
		rules[name] = FieldRules{Required: f.Required, Kind: f.Kind}
	}
	return rules
}

// Validate checks submitted input against the module's derived rules and
// returns per-field errors. An empty result means the write may proceed;
// validation fully precedes persistence.
func Validate(m *metadata.ModuleDefinition, mode Mode, input map[string]any) []ErrorDetail {
	rules := BuildRules(m, mode)

	var errs []ErrorDetail
	for _, name := range m.Form {
		r, ok := rules[name]
		if !ok {
			continue
		}

		v := input[name]
		if isEmpty(v) {
			if r.Required {
				errs = append(errs, ErrorDetail{
					Field:   name,
					Rule:    "required",
					Message: fmt.Sprintf("%s is required", fieldLabel(m, name)),
				})
			}
			continue
		}

		if r.MinLength > 0 && len(stringValue(v)) < r.MinLength {
			errs = append(errs, ErrorDetail{
				Field:   name,
				Rule:    "min",
				Message: fmt.Sprintf("%s must be at least %d characters", fieldLabel(m, name), r.MinLength),
			})
			continue
		}

		if check, ok := kindChecks[r.Kind]; ok && !check.ok(v) {
			errs = append(errs, ErrorDetail{
				Field:   name,
				Rule:    check.rule,
				Message: fmt.Sprintf("%s %s", fieldLabel(m, name), check.message),
			})
		}
	}
	return errs
}

type kindCheck struct {
	rule    string
	message string
	ok      func(any) bool
}

// kindChecks is the fixed dispatch table of type-specific format constraints.
// Kinds without an entry (text, textarea, select, enum, password) add none.
var kindChecks = map[metadata.FieldKind]kindCheck{
	metadata.KindEmail:    {rule: "email", message: "must be a valid email address", ok: isEmail},
	metadata.KindNumber:   {rule: "integer", message: "must be an integer", ok: isInteger},
	metadata.KindDecimal:  {rule: "numeric", message: "must be a number", ok: isNumeric},
	metadata.KindDate:     {rule: "date", message: "must be a valid date", ok: isDate},
	metadata.KindDatetime: {rule: "date", message: "must be a valid date", ok: isDate},
	metadata.KindTime:     {rule: "time", message: "must be in HH:MM format", ok: isClockTime},
	metadata.KindBoolean:  {rule: "boolean", message: "must be a boolean", ok: isBooleanish},
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func isEmail(v any) bool {
	return emailPattern.MatchString(stringValue(v))
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int32, int64:
		return true
	case float64:
		return n == float64(int64(n))
	case string:
		_, err := strconv.ParseInt(n, 10, 64)
		return err == nil
	}
	return false
}

func isNumeric(v any) bool {
	switch n := v.(type) {
	case int, int32, int64, float32, float64:
		return true
	case string:
		_, err := strconv.ParseFloat(n, 64)
		return err == nil
	}
	return false
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", "2006-01-02T15:04", time.RFC3339}

func isDate(v any) bool {
	if _, ok := v.(time.Time); ok {
		return true
	}
	s := stringValue(v)
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isClockTime(v any) bool {
	_, err := time.Parse("15:04", stringValue(v))
	return err == nil
}

func isBooleanish(v any) bool {
	switch n := v.(type) {
	case bool:
		return true
	case float64:
		return n == 0 || n == 1
	case int:
		return n == 0 || n == 1
	case string:
		switch n {
		case "0", "1", "true", "false", "on", "off", "yes", "no":
			return true
		}
	}
	return false
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func fieldLabel(m *metadata.ModuleDefinition, name string) string {
	if f := m.GetField(name); f != nil && f.Label != "" {
		return f.Label
	}
	return name
}
