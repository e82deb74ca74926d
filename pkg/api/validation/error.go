// ScopeTerm
// Copyright (c) 2026 The ScopeTerm Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of ScopeTerm.
//
// ScopeTerm is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ScopeTerm is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with ScopeTerm.  If not, see <http://www.gnu.org/licenses/>.

package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error collects the fields of a request or config section that were
// rejected. Its message joins one sentence per field.
type Error struct {
	Fields []FieldError `json:"fields"`
}

type FieldError struct {
	Value   any    `json:"value,omitempty"`
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "invalid settings"
	}
	var b strings.Builder
	for i, f := range e.Fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Message)
	}
	return b.String()
}

// NewError converts validator output, keeping field order.
func NewError(errs validator.ValidationErrors) *Error {
	out := &Error{Fields: make([]FieldError, 0, len(errs))}
	for _, fe := range errs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Value:   fe.Value(),
			Message: describe(fe),
		})
	}
	return out
}

// ruleText maps a rule to a sentence; %[1]s is the field and %[2]s the
// rule parameter.
var ruleText = map[string]string{
	"required":      "%[1]s is required",
	"hexdata":       `%[1]s must be hex bytes (e.g. "AA 55 03")`,
	"baudtext":      "%[1]s must be a positive baud rate",
	"decodescript":  "%[1]s must be a .lua or .expr file",
	"hostname_port": "%[1]s must be host:port",
	"url":           "%[1]s must be a URL",
	"oneof":         "%[1]s must be one of: %[2]s",
	"min":           "%[1]s must be at least %[2]s",
	"gte":           "%[1]s must be at least %[2]s",
	"max":           "%[1]s must be at most %[2]s",
	"lte":           "%[1]s must be at most %[2]s",
	"gt":            "%[1]s must be above %[2]s",
	"lt":            "%[1]s must be below %[2]s",
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	if text, ok := ruleText[fe.Tag()]; ok {
		if !strings.Contains(text, "%[2]s") {
			return fmt.Sprintf(text, field)
		}
		return fmt.Sprintf(text, field, fe.Param())
	}
	return fmt.Sprintf("%s is not valid (%s)", field, fe.Tag())
}
