package cucumber

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Expand replaces every ${name} or ${name | pipe} in value.
func (s *TestScenario) Expand(value string) (string, error) {
	var firstErr error
	expanded := os.Expand(value, func(ref string) string {
		text, err := s.lookup(ref)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return text
	})
	return expanded, firstErr
}

func (s *TestScenario) lookup(ref string) (string, error) {
	parts := strings.Split(ref, "|")
	name := strings.TrimSpace(parts[0])
	value, ok := s.Variables[name]
	if !ok {
		return "", fmt.Errorf("variable ${%s} is not defined", name)
	}
	for _, pipe := range parts[1:] {
		switch strings.TrimSpace(pipe) {
		case "json":
			data, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return "", fmt.Errorf("${%s}: %w", ref, err)
			}
			value = string(data)
		default:
			return "", fmt.Errorf("${%s}: unknown pipe %q", ref, strings.TrimSpace(pipe))
		}
	}
	return text(value)
}

func text(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
