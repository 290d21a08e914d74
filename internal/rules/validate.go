// Package rules evaluates user-defined condition -> action rules against transactions.
//
// Everything here is pure: no storage, no clock. Rules are validated when they
// are created or updated, so evaluation never has to report malformed input.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/apperr"
	"fintrack/internal/model"
)

type fieldType int

const (
	textField fieldType = iota + 1
	numberField
	dateField
)

const dateLayout = "2006-01-02"

var conditionFields = map[string]fieldType{
	model.FieldDescription:  textField,
	model.FieldMerchantName: textField,
	model.FieldAmount:       numberField,
	model.FieldDate:         dateField,
	model.FieldAccountID:    numberField,
}

var operatorsByType = map[fieldType]map[string]bool{
	textField: {
		model.OpEquals:     true,
		model.OpContains:   true,
		model.OpStartsWith: true,
		model.OpEndsWith:   true,
		model.OpRegex:      true,
	},
	numberField: {
		model.OpEquals:      true,
		model.OpGreaterThan: true,
		model.OpLessThan:    true,
	},
	dateField: {
		model.OpEquals: true,
		model.OpBefore: true,
		model.OpAfter:  true,
	},
}

func knownOperator(op string) bool {
	for _, ops := range operatorsByType {
		if ops[op] {
			return true
		}
	}
	return false
}

// compatible reports whether op is defined for the field's type. An incompatible
// but known operator is accepted at validation and simply never matches.
func compatible(field, op string) bool {
	return operatorsByType[conditionFields[field]][op]
}

// Validate checks every condition and action of r.
func Validate(r model.ProcessingRule) error {
	_, err := compile(r)
	return err
}

type condition struct {
	field string
	op    string
	text  string
	num   float64
	date  time.Time
	re    *regexp.Regexp
	never bool
}

type compiledRule struct {
	rule       model.ProcessingRule
	conditions []condition
}

// compile validates r and prepares its conditions for repeated evaluation.
func compile(r model.ProcessingRule) (*compiledRule, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, apperr.Validation("name", "must not be empty")
	}
	if len(r.Conditions) == 0 {
		return nil, apperr.Validation("conditions", "at least one condition is required")
	}
	if len(r.Actions) == 0 {
		return nil, apperr.Validation("actions", "at least one action is required")
	}

	cr := &compiledRule{rule: r, conditions: make([]condition, 0, len(r.Conditions))}
	for i, c := range r.Conditions {
		cc, err := compileCondition(c)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("conditions[%d]", i), "%s", err.Error())
		}
		cr.conditions = append(cr.conditions, cc)
	}
	for i, a := range r.Actions {
		if err := validateAction(a); err != nil {
			return nil, apperr.Validation(fmt.Sprintf("actions[%d]", i), "%s", err.Error())
		}
	}
	return cr, nil
}

func compileCondition(c model.Condition) (condition, error) {
	ft, ok := conditionFields[c.Field]
	if !ok {
		return condition{}, fmt.Errorf("unknown field %q", c.Field)
	}
	if !knownOperator(c.Operator) {
		return condition{}, fmt.Errorf("unknown operator %q", c.Operator)
	}
	cc := condition{field: c.Field, op: c.Operator}
	if !compatible(c.Field, c.Operator) {
		cc.never = true
		return cc, nil
	}

	switch ft {
	case textField:
		if c.Value == "" {
			return condition{}, fmt.Errorf("value must not be empty")
		}
		if c.Operator == model.OpRegex {
			re, err := regexp.Compile("(?i)" + c.Value)
			if err != nil {
				return condition{}, fmt.Errorf("invalid regex: %v", err)
			}
			cc.re = re
		}
		cc.text = strings.ToLower(c.Value)
	case numberField:
		n, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if err != nil {
			return condition{}, fmt.Errorf("value %q is not a number", c.Value)
		}
		cc.num = n
	case dateField:
		d, err := time.Parse(dateLayout, strings.TrimSpace(c.Value))
		if err != nil {
			return condition{}, fmt.Errorf("value %q is not a date (YYYY-MM-DD)", c.Value)
		}
		cc.date = d
	}
	return cc, nil
}

func validateAction(a model.Action) error {
	switch a.Field {
	case model.ActionCategoryID:
		id, err := strconv.ParseInt(strings.TrimSpace(a.Value), 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("category_id must be a positive integer, got %q", a.Value)
		}
	case model.ActionTags, model.ActionDescription, model.ActionMerchantName:
		if strings.TrimSpace(a.Value) == "" {
			return fmt.Errorf("%s value must not be empty", a.Field)
		}
	case model.ActionVerified:
		if _, err := strconv.ParseBool(a.Value); err != nil {
			return fmt.Errorf("verified must be true or false, got %q", a.Value)
		}
	default:
		return fmt.Errorf("unknown field %q", a.Field)
	}
	return nil
}
