package protocol

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// SplitNibbles returns the high and low nibble of b.
func SplitNibbles(b byte) (hi, lo byte) {
	return b >> 4, b & 0x0F
}

// Bit reports whether bit n of b is set.
func Bit(b byte, n uint) bool {
	return b&(1<<n) != 0
}

// DecodeTime decodes the 6-byte panel clock encoding
// (century, year, month, day, hour, minute) in local time.
// ok is false when any field is out of calendar range or the year does
// not fit in four digits.
func DecodeTime(b []byte) (t time.Time, ok bool) {
	if len(b) < 6 {
		return time.Time{}, false
	}
	year := int(b[0])*100 + int(b[1])
	month, day, hour, minute := int(b[2]), int(b[3]), int(b[4]), int(b[5])
	if b[1] > 99 || year < 1 || year > 9999 {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	if day > daysIn(year, time.Month(month)) {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.Local), true
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DecodeLabel decodes a fixed-width label field. The text is cut at the first
// NUL and trimmed; ok is false for empty, NUL-prefixed or non UTF-8 fields.
func DecodeLabel(b []byte) (label string, ok bool) {
	if len(b) == 0 || b[0] == 0 {
		return "", false
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if !utf8.Valid(b) {
		return "", false
	}
	label = strings.TrimSpace(string(b))
	if label == "" {
		return "", false
	}
	return label, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// InputVoltage scales the raw input DC voltage byte to volts.
func InputVoltage(raw byte) float64 {
	return round1(float64(raw)*(20.3-1.4)/255.0 + 1.4)
}

// SupplyVoltage scales a raw power supply or battery voltage byte to volts.
func SupplyVoltage(raw byte) float64 {
	return round1(float64(raw) * 22.8 / 255.0)
}

// ModuleSerial formats the 4 serial number bytes of a live event.
func ModuleSerial(b []byte) string {
	if len(b) < 4 {
		return ""
	}
	return fmt.Sprintf("%02X%02X%02X%02X", b[0], b[1], b[2], b[3])
}
