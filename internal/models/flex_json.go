package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// submissionFieldMap caches JSON tag -> struct field index mappings
var (
	submissionFieldMap     map[string]int
	submissionFieldMapOnce sync.Once
)

func getSubmissionFieldMap() map[string]int {
	submissionFieldMapOnce.Do(func() {
		t := reflect.TypeOf(ScoreSubmission{})
		submissionFieldMap = make(map[string]int, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			tag := t.Field(i).Tag.Get("json")
			if tag == "" || tag == "-" {
				continue
			}
			name := strings.Split(tag, ",")[0]
			submissionFieldMap[name] = i
		}
	})
	return submissionFieldMap
}

// UnmarshalJSON implements flexible JSON unmarshaling that accepts both
// string-encoded and native JSON types. Some upstream relay scripts
// serialize every value as a quoted string; this coerces them to the
// correct Go types transparently. Absent hit statistics stay zero.
func (s *ScoreSubmission) UnmarshalJSON(data []byte) error {
	// Alias prevents infinite recursion
	type Alias ScoreSubmission
	a := (*Alias)(s)

	// Fast path: try standard unmarshal (works when all types match natively)
	if err := json.Unmarshal(data, a); err == nil {
		return nil
	}

	// Slow path: field-by-field with string-to-native coercion
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("flex unmarshal: %w", err)
	}

	fieldMap := getSubmissionFieldMap()
	v := reflect.ValueOf(a).Elem()

	for key, rawVal := range raw {
		idx, ok := fieldMap[key]
		if !ok {
			continue
		}

		fv := v.Field(idx)
		if !fv.CanSet() {
			continue
		}

		// Try direct unmarshal first
		ptr := reflect.New(fv.Type())
		if err := json.Unmarshal(rawVal, ptr.Interface()); err == nil {
			fv.Set(ptr.Elem())
			continue
		}

		// Value is a JSON string but target is numeric — coerce
		if len(rawVal) > 1 && rawVal[0] == '"' {
			var str string
			if err := json.Unmarshal(rawVal, &str); err != nil {
				continue
			}
			switch fv.Kind() {
			case reflect.Int, reflect.Int64:
				if n, err := strconv.ParseInt(str, 10, 64); err == nil {
					fv.SetInt(n)
				}
			case reflect.Float64:
				if f, err := strconv.ParseFloat(str, 64); err == nil {
					fv.SetFloat(f)
				}
			case reflect.String:
				fv.SetString(str)
			}
		}
	}

	return nil
}
