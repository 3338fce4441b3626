package deps

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sunmao-dev/sunmao/pkg/expression"
)

// Date is an immutable date value returned by dayjs(). Every method that
// changes the time returns a new Date.
type Date struct {
	t     time.Time
	valid bool
	now   func() time.Time
}

// inputLayouts are tried in order when parsing a string.
var inputLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"2006",
}

// NewDayjs returns the dayjs function. Called with no argument it returns
// the current time; it also accepts a Date, milliseconds since the epoch or
// a date string.
func NewDayjs(now func() time.Time, loc *time.Location) expression.Func {
	if loc == nil {
		loc = time.Local
	}
	return func(args ...any) (any, error) {
		d := &Date{now: now, valid: true}
		if len(args) == 0 || args[0] == nil {
			d.t = now().In(loc)
			return d, nil
		}
		switch v := expression.Normalize(args[0]).(type) {
		case *Date:
			return v, nil
		case float64:
			d.t = time.UnixMilli(int64(v)).In(loc)
		case string:
			d.t, d.valid = parseDate(v, loc)
		default:
			d.valid = false
		}
		return d, nil
	}
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range inputLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

// Time returns the underlying time.
func (d *Date) Time() time.Time {
	return d.t
}

// String renders the date in RFC 3339 form.
func (d *Date) String() string {
	if !d.valid {
		return "Invalid Date"
	}
	return d.t.Format(time.RFC3339)
}

// MarshalJSON encodes the date as an ISO 8601 string.
func (d *Date) MarshalJSON() ([]byte, error) {
	if !d.valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.toISO())
}

func (d *Date) toISO() string {
	return d.t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func (d *Date) with(t time.Time) *Date {
	return &Date{t: t, valid: d.valid, now: d.now}
}

// Property implements expression.Object.
func (d *Date) Property(name string) (any, bool) {
	var fn expression.Func
	switch name {
	case "format":
		fn = func(args ...any) (any, error) {
			if !d.valid {
				return "Invalid Date", nil
			}
			layout := "YYYY-MM-DDTHH:mm:ssZ"
			if len(args) > 0 && args[0] != nil {
				layout = expression.ToString(args[0])
			}
			return formatDate(d.t, layout), nil
		}
	case "add", "subtract":
		fn = func(args ...any) (any, error) {
			n := expression.ToNumber(arg(args, 0))
			if name == "subtract" {
				n = -n
			}
			return d.with(addUnit(d.t, n, unitOf(arg(args, 1)))), nil
		}
	case "startOf", "endOf":
		fn = func(args ...any) (any, error) {
			t := startOf(d.t, unitOf(arg(args, 0)))
			if name == "endOf" {
				t = addUnit(t, 1, unitOf(arg(args, 0))).Add(-time.Millisecond)
			}
			return d.with(t), nil
		}
	case "diff":
		fn = func(args ...any) (any, error) {
			other, ok := toTime(arg(args, 0), d)
			if !ok {
				return math.NaN(), nil
			}
			return diff(d.t, other, unitOf(arg(args, 1)), expression.Truthy(arg(args, 2))), nil
		}
	case "fromNow":
		fn = func(args ...any) (any, error) {
			if !d.valid {
				return "Invalid Date", nil
			}
			return humanize.RelTime(d.t, d.now(), "ago", "from now"), nil
		}
	case "isBefore", "isAfter", "isSame":
		fn = func(args ...any) (any, error) {
			other, ok := toTime(arg(args, 0), d)
			if !ok || !d.valid {
				return false, nil
			}
			a, b := d.t, other
			if u := arg(args, 1); u != nil {
				a, b = startOf(a, unitOf(u)), startOf(b, unitOf(u))
			}
			switch name {
			case "isBefore":
				return a.Before(b), nil
			case "isAfter":
				return a.After(b), nil
			}
			return a.Equal(b), nil
		}
	case "isValid":
		fn = func(args ...any) (any, error) { return d.valid, nil }
	case "isLeapYear":
		fn = func(args ...any) (any, error) {
			y := d.t.Year()
			return y%4 == 0 && (y%100 != 0 || y%400 == 0), nil
		}
	case "valueOf":
		fn = func(args ...any) (any, error) { return float64(d.t.UnixMilli()), nil }
	case "unix":
		fn = func(args ...any) (any, error) { return float64(d.t.Unix()), nil }
	case "toISOString", "toJSON":
		fn = func(args ...any) (any, error) { return d.toISO(), nil }
	case "toString":
		fn = func(args ...any) (any, error) { return d.String(), nil }
	case "daysInMonth":
		fn = func(args ...any) (any, error) {
			first := time.Date(d.t.Year(), d.t.Month(), 1, 0, 0, 0, 0, d.t.Location())
			return float64(first.AddDate(0, 1, -1).Day()), nil
		}
	case "year", "month", "date", "day", "hour", "minute", "second", "millisecond":
		fn = func(args ...any) (any, error) {
			return float64(component(d.t, name)), nil
		}
	default:
		return nil, false
	}
	return fn, true
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func toTime(v any, d *Date) (time.Time, bool) {
	switch x := expression.Normalize(v).(type) {
	case nil:
		return d.now().In(d.t.Location()), true
	case *Date:
		return x.t, x.valid
	case float64:
		return time.UnixMilli(int64(x)).In(d.t.Location()), true
	case string:
		return parseDate(x, d.t.Location())
	}
	return time.Time{}, false
}

func component(t time.Time, name string) int {
	switch name {
	case "year":
		return t.Year()
	case "month":
		return int(t.Month()) - 1
	case "date":
		return t.Day()
	case "day":
		return int(t.Weekday())
	case "hour":
		return t.Hour()
	case "minute":
		return t.Minute()
	case "second":
		return t.Second()
	}
	return t.Nanosecond() / int(time.Millisecond)
}

// unitOf normalizes dayjs unit names: "days", "day" and "d" are the same.
func unitOf(v any) string {
	u := expression.ToString(v)
	switch u {
	case "M", "month", "months":
		return "month"
	case "ms":
		return "millisecond"
	case "s":
		return "second"
	}
	u = strings.ToLower(strings.TrimSuffix(u, "s"))
	switch u {
	case "y", "year":
		return "year"
	case "w", "week":
		return "week"
	case "d", "day", "date":
		return "day"
	case "h", "hour":
		return "hour"
	case "m", "minute":
		return "minute"
	case "", "millisecond":
		return "millisecond"
	case "second":
		return "second"
	}
	return "millisecond"
}

func addUnit(t time.Time, n float64, unit string) time.Time {
	whole := int(n)
	switch unit {
	case "year":
		return t.AddDate(whole, 0, 0)
	case "month":
		return t.AddDate(0, whole, 0)
	case "week":
		return t.AddDate(0, 0, 7*whole)
	case "day":
		return t.AddDate(0, 0, whole)
	case "hour":
		return t.Add(time.Duration(n * float64(time.Hour)))
	case "minute":
		return t.Add(time.Duration(n * float64(time.Minute)))
	case "second":
		return t.Add(time.Duration(n * float64(time.Second)))
	}
	return t.Add(time.Duration(n * float64(time.Millisecond)))
}

func startOf(t time.Time, unit string) time.Time {
	loc := t.Location()
	switch unit {
	case "year":
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, loc)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case "week":
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		return day.AddDate(0, 0, -int(t.Weekday()))
	case "day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case "hour":
		return t.Truncate(time.Hour)
	case "minute":
		return t.Truncate(time.Minute)
	case "second":
		return t.Truncate(time.Second)
	}
	return t
}

func diff(a, b time.Time, unit string, float bool) float64 {
	var v float64
	switch unit {
	case "year", "month":
		months := float64((a.Year()-b.Year())*12 + int(a.Month()) - int(b.Month()))
		anchor := b.AddDate(0, int(months), 0)
		// Fractional part relative to the month the anchor lands in.
		var frac float64
		if a.Before(anchor) {
			prev := anchor.AddDate(0, -1, 0)
			frac = float64(a.Sub(anchor)) / float64(anchor.Sub(prev))
		} else {
			next := anchor.AddDate(0, 1, 0)
			frac = float64(a.Sub(anchor)) / float64(next.Sub(anchor))
		}
		v = months + frac
		if unit == "year" {
			v /= 12
		}
	case "week":
		v = float64(a.Sub(b)) / float64(7*24*time.Hour)
	case "day":
		v = float64(a.Sub(b)) / float64(24*time.Hour)
	case "hour":
		v = float64(a.Sub(b)) / float64(time.Hour)
	case "minute":
		v = float64(a.Sub(b)) / float64(time.Minute)
	case "second":
		v = float64(a.Sub(b)) / float64(time.Second)
	default:
		v = float64(a.Sub(b)) / float64(time.Millisecond)
	}
	if float {
		return v
	}
	return math.Trunc(v)
}

var formatToken = regexp.MustCompile(`\[([^\]]*)]|YYYY|YY|MMMM|MMM|MM|M|DD|D|dddd|ddd|dd|d|HH|H|hh|h|mm|m|ss|s|SSS|A|a|ZZ|Z`)

func pad(n, width int) string {
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// formatDate renders t with dayjs format tokens. Text in square brackets
// is copied verbatim.
func formatDate(t time.Time, layout string) string {
	return formatToken.ReplaceAllStringFunc(layout, func(tok string) string {
		if strings.HasPrefix(tok, "[") {
			return tok[1 : len(tok)-1]
		}
		h12 := t.Hour() % 12
		if h12 == 0 {
			h12 = 12
		}
		switch tok {
		case "YYYY":
			return pad(t.Year(), 4)
		case "YY":
			return pad(t.Year()%100, 2)
		case "MMMM":
			return t.Month().String()
		case "MMM":
			return t.Month().String()[:3]
		case "MM":
			return pad(int(t.Month()), 2)
		case "M":
			return strconv.Itoa(int(t.Month()))
		case "DD":
			return pad(t.Day(), 2)
		case "D":
			return strconv.Itoa(t.Day())
		case "dddd":
			return t.Weekday().String()
		case "ddd":
			return t.Weekday().String()[:3]
		case "dd":
			return t.Weekday().String()[:2]
		case "d":
			return strconv.Itoa(int(t.Weekday()))
		case "HH":
			return pad(t.Hour(), 2)
		case "H":
			return strconv.Itoa(t.Hour())
		case "hh":
			return pad(h12, 2)
		case "h":
			return strconv.Itoa(h12)
		case "mm":
			return pad(t.Minute(), 2)
		case "m":
			return strconv.Itoa(t.Minute())
		case "ss":
			return pad(t.Second(), 2)
		case "s":
			return strconv.Itoa(t.Second())
		case "SSS":
			return pad(t.Nanosecond()/int(time.Millisecond), 3)
		case "A":
			if t.Hour() < 12 {
				return "AM"
			}
			return "PM"
		case "a":
			if t.Hour() < 12 {
				return "am"
			}
			return "pm"
		case "Z":
			return t.Format("-07:00")
		case "ZZ":
			return t.Format("-0700")
		}
		return tok
	})
}
