package validate

import (
	"strconv"
	"strings"

	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ListQuery parses the list endpoint's query parameters. Empty values take
// their defaults; every malformed or out of range value is reported.
func ListQuery(skip, limit, platform, processed string) (registrystore.ListFilter, error) {
	filter := registrystore.ListFilter{Limit: DefaultLimit}
	out := &Error{}

	if skip != "" {
		n, err := strconv.Atoi(skip)
		switch {
		case err != nil:
			out.Violations = append(out.Violations, Violation{Field: "skip", Message: "must be an integer"})
		case n < 0:
			out.Violations = append(out.Violations, Violation{Field: "skip", Message: "must be greater than or equal to 0"})
		default:
			filter.Skip = n
		}
	}

	if limit != "" {
		n, err := strconv.Atoi(limit)
		switch {
		case err != nil:
			out.Violations = append(out.Violations, Violation{Field: "limit", Message: "must be an integer"})
		case n < 1 || n > MaxLimit:
			out.Violations = append(out.Violations, Violation{Field: "limit", Message: "must be between 1 and " + strconv.Itoa(MaxLimit)})
		default:
			filter.Limit = n
		}
	}

	if platform != "" {
		filter.Platform = &platform
	}

	if processed != "" {
		b, ok := parseBool(processed)
		if !ok {
			out.Violations = append(out.Violations, Violation{Field: "processed", Message: "must be a boolean"})
		} else {
			filter.Processed = &b
		}
	}

	if len(out.Violations) > 0 {
		return registrystore.ListFilter{}, out
	}
	return filter, nil
}

// parseBool accepts the spellings browsers and scripts commonly send.
func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, true
	case "0", "f", "false", "n", "no", "off":
		return false, true
	}
	return false, false
}
