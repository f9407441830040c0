package registry

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
)

// Time range buckets of the analytics series.
const (
	Range24h = "24h-ts"
	Range7d  = "7d-ts"
	Range1m  = "1m-ts"
	Range3m  = "3m-ts"
	Range6m  = "6m-ts"
)

// TimeRanges lists the buckets in display order.
var TimeRanges = []string{Range24h, Range7d, Range1m, Range3m, Range6m}

var ErrUnknownRange = errors.New("unknown time range")

// NormalizeRange defaults an empty range to 24h and rejects unknown ones.
func NormalizeRange(r string) (string, error) {
	if r == "" {
		return Range24h, nil
	}
	for _, known := range TimeRanges {
		if r == known {
			return r, nil
		}
	}
	return "", ErrUnknownRange
}

// Series returns the samples for one time range.
func Series(series models.PriceSeries, r string) ([]models.DataPoint, error) {
	key, err := NormalizeRange(r)
	if err != nil {
		return nil, err
	}
	return series[key], nil
}

// Field is one formatted key/value of an analytics section.
type Field struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

var periodPrefixes = []string{"24H", "7D", "1M", "3M", "6M"}

var firstLetter = regexp.MustCompile(`^\w`)

// FormatKey turns an analytics key into a readable label, e.g. "delta-24h" -> "24H".
func FormatKey(key string) string {
	switch key {
	case "price":
		return "Current Price"
	case "mcap":
		return "Market Cap"
	}
	if strings.Contains(key, "delta") {
		label := strings.Replace(key, "delta", "", 1)
		label = strings.ReplaceAll(label, "-", "")
		label = strings.Replace(label, "h", "H", 1)
		label = strings.Replace(label, "d", "D", 1)
		label = strings.Replace(label, "m", "M", 1)
		return capitalize(label)
	}
	return capitalize(strings.ReplaceAll(key, "-", " "))
}

// FormatValue renders a value with "%" for period deltas and "$" for price and market cap.
func FormatValue(key, value string) string {
	label := FormatKey(key)
	for _, p := range periodPrefixes {
		if strings.HasPrefix(label, p) {
			return groupThousands(value) + "%"
		}
	}
	if key == "mcap" || key == "price" {
		return "$" + groupThousands(value)
	}
	return value
}

// FormatSection formats every field of a section, sorted by key.
func FormatSection(section map[string]string) []Field {
	keys := make([]string, 0, len(section))
	for k := range section {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Key: k, Label: FormatKey(k), Value: FormatValue(k, section[k])})
	}
	return fields
}

// DeployDate renders the unix deploy timestamp as a date.
func DeployDate(info *models.Analytics) string {
	secs, err := decimal.NewFromString(info.DeployTimestamp)
	if err != nil {
		return ""
	}
	return time.Unix(secs.IntPart(), 0).UTC().Format("2006-01-02")
}

func capitalize(s string) string {
	return firstLetter.ReplaceAllStringFunc(s, strings.ToUpper)
}

// groupThousands formats a numeric string with comma separators, keeping up to
// three fraction digits. Non numeric input is returned unchanged.
func groupThousands(value string) string {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return value
	}
	d = d.Round(3)
	neg := d.IsNegative()
	d = d.Abs()

	intPart := d.Truncate(0).String()
	frac := strings.TrimPrefix(d.Sub(d.Truncate(0)).String(), "0")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
