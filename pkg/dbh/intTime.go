package dbh

import (
	"database/sql/driver"
	"time"
)

// IntTime is a UTC timestamp stored as unix milliseconds in an INT column.
// In JSON it is a plain number, which Javascript can pass straight to "new Date(x)".
// Zero is stored as NULL, so the epoch itself can't be represented.
type IntTime int64

func MakeIntTime(v time.Time) IntTime {
	if v.IsZero() {
		return 0
	}
	return IntTime(v.UnixMilli())
}

func (t *IntTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = 0
	case int64:
		*t = IntTime(v)
	case int32:
		*t = IntTime(v)
	}
	return nil
}

func (t IntTime) Value() (driver.Value, error) {
	if t == 0 {
		return nil, nil
	}
	return int64(t), nil
}
