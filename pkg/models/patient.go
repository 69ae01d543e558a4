package models

import (
	"math"
	"strconv"
	"strings"
)

// PatientNameAge pulls the patient display fields out of the stage-1
// structured payload. The extraction prompt emits Portuguese keys but older
// prompt versions used English ones, so both spellings are accepted. Missing
// or blank values come back nil.
func PatientNameAge(structured map[string]any) (name, age *string) {
	patient := childMap(structured, "patient", "paciente")
	if patient == nil {
		return nil, nil
	}
	name = stringField(patient, "name", "nome")
	age = ageField(patient, "age", "idade")
	return name, age
}

func childMap(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if child, ok := m[key].(map[string]any); ok {
			return child
		}
	}
	return nil
}

func stringField(m map[string]any, keys ...string) *string {
	for _, key := range keys {
		raw, ok := m[key].(string)
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		return &trimmed
	}
	return nil
}

// ageField tolerates the age arriving as a JSON number or a string.
func ageField(m map[string]any, keys ...string) *string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				continue
			}
			return &trimmed
		case float64:
			var s string
			if v == math.Trunc(v) {
				s = strconv.FormatInt(int64(v), 10)
			} else {
				s = strconv.FormatFloat(v, 'f', -1, 64)
			}
			return &s
		case int:
			s := strconv.Itoa(v)
			return &s
		}
	}
	return nil
}
