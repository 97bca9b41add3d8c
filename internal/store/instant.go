package store

import (
	"fmt"
	"time"
)

// instantLayouts are the accepted string encodings, newest first. Older
// documents carry bare ISO strings without zone info; those are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// ParseInstant coerces a persisted timestamp value into a time.Time. Values
// arrive either as structured timestamps or as raw ISO strings depending on
// the driver and the age of the document; the core never sees that
// ambiguity.
func ParseInstant(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return t.UTC(), nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		for _, layout := range instantLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized instant %q", t)
	case []byte:
		return ParseInstant(string(t))
	default:
		return time.Time{}, fmt.Errorf("unsupported instant type %T", v)
	}
}

// ParseOptionalInstant is ParseInstant for nullable columns: zero values
// come back as nil.
func ParseOptionalInstant(v any) (*time.Time, error) {
	ts, err := ParseInstant(v)
	if err != nil {
		return nil, err
	}
	if ts.IsZero() {
		return nil, nil
	}
	return &ts, nil
}
