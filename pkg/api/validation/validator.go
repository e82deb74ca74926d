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

// Package validation checks API request bodies and config values with
// go-playground/validator plus a few ScopeTerm specific tags.
package validation

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMissingParams = errors.New("missing params")
	ErrInvalidParams = errors.New("invalid params")
)

// Validator handles validation of API params and config sections.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with the custom tags registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("hexdata", validateHexData)
	_ = v.RegisterValidation("baudtext", validateBaudText)
	_ = v.RegisterValidation("decodescript", validateDecodeScript)

	return &Validator{validate: v}
}

// DefaultValidator is shared by the API and config loader.
var DefaultValidator = NewValidator()

// Validate validates a struct and returns an *Error when fields fail.
func (v *Validator) Validate(params any) error {
	if err := v.validate.Struct(params); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateAndUnmarshal decodes JSON into dest and validates it.
func ValidateAndUnmarshal[T any](data []byte, dest *T) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return ErrMissingParams
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return ErrInvalidParams
	}
	return DefaultValidator.Validate(dest)
}

// validateHexData accepts whitespace separated hex bytes such as
// "AA 55 03" or a run like "AA5503".
func validateHexData(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	normalized := strings.Join(strings.Fields(val), "")
	if normalized == "" {
		return false
	}
	_, err := hex.DecodeString(normalized)
	return err == nil
}

// validateBaudText accepts a positive integer typed as text.
func validateBaudText(fl validator.FieldLevel) bool {
	val := strings.TrimSpace(fl.Field().String())
	if val == "" {
		return true
	}
	n, err := strconv.Atoi(val)
	return err == nil && n > 0
}

// validateDecodeScript accepts an empty path or a .lua / .expr file.
func validateDecodeScript(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	switch strings.ToLower(filepath.Ext(val)) {
	case ".lua", ".expr":
		return true
	default:
		return false
	}
}
