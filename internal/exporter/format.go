// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package exporter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout renders datetimes the way the Poliops loaders expect,
// e.g. "Jul  4 1776 09:00AM": abbreviated month, space-padded day, 12-hour clock.
const TimestampLayout = "Jan _2 2006 03:04PM"

// FormatTimestamp renders t with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// FormatValue renders a scanned column value. dbType is the driver's database
// type name and only matters for time values: DATE and TIME columns are not
// timestamps and keep their ISO text form.
func FormatValue(v interface{}, dbType string) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		if val {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case time.Time:
		switch strings.ToUpper(dbType) {
		case "DATE":
			return val.Format("2006-01-02")
		case "TIME":
			if val.Nanosecond() == 0 {
				return val.Format("15:04:05")
			}
			return val.Format("15:04:05.000000")
		}
		return FormatTimestamp(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatFloat uses the shortest round-trip digits, fixed notation with a
// trailing ".0" for integral values, and exponent notation outside [1e-4, 1e16).
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expStr, _ := strings.Cut(sci, "e")
	exp, _ := strconv.Atoi(expStr)
	if exp < -4 || exp >= 16 {
		sign := "+"
		if exp < 0 {
			sign = "-"
			exp = -exp
		}
		return fmt.Sprintf("%se%s%02d", mant, sign, exp)
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
