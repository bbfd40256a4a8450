package formats

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"marketcore/pkg/contracts/domain"
)

var (
	thousandsInt   = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+$`)
	thousandsFloat = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+\.\d+$`)
)

// timestampLayouts are tried in order when inferring TIMESTAMP columns.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	"2006/01/02",
}

var nullTokens = map[string]struct{}{
	"":     {},
	"null": {},
	"NULL": {},
	"NA":   {},
	"N/A":  {},
}

func isNullToken(s string) bool {
	_, ok := nullTokens[s]
	return ok
}

func parseInteger(s string) (any, bool) {
	if thousandsInt.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, false
	}
	return v, true
}

func parseFloat(s string) (any, bool) {
	if thousandsInt.MatchString(s) || thousandsFloat.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	// strconv accepts hex floats and underscores; market files never use them
	if strings.ContainsAny(s, "xX_") {
		return nil, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return v, true
}

func parseBoolean(s string) (any, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return nil, false
}

func parseTimestamp(s string) (any, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return nil, false
}

func parseText(s string) (any, bool) { return s, true }

type cellParser func(string) (any, bool)

var parsers = map[domain.ColumnType]cellParser{
	domain.TypeInteger:   parseInteger,
	domain.TypeFloat:     parseFloat,
	domain.TypeBoolean:   parseBoolean,
	domain.TypeTimestamp: parseTimestamp,
	domain.TypeText:      parseText,
}

// widening lists the types a column falls back to when a value outside the
// sample does not parse as the sampled type.
var widening = map[domain.ColumnType][]domain.ColumnType{
	domain.TypeInteger:   {domain.TypeInteger, domain.TypeFloat, domain.TypeText},
	domain.TypeFloat:     {domain.TypeFloat, domain.TypeText},
	domain.TypeBoolean:   {domain.TypeBoolean, domain.TypeText},
	domain.TypeTimestamp: {domain.TypeTimestamp, domain.TypeText},
	domain.TypeText:      {domain.TypeText},
}

// sampleType picks the narrowest type every non-null value in the sample
// parses as.
func sampleType(raw []string, sample int) domain.ColumnType {
	candidates := []domain.ColumnType{domain.TypeInteger, domain.TypeFloat, domain.TypeBoolean, domain.TypeTimestamp}
	seen := 0
	for _, s := range raw {
		if sample > 0 && seen >= sample {
			break
		}
		if isNullToken(s) {
			continue
		}
		seen++
		kept := candidates[:0]
		for _, c := range candidates {
			if _, ok := parsers[c](s); ok {
				kept = append(kept, c)
			}
		}
		candidates = kept
		if len(candidates) == 0 {
			return domain.TypeText
		}
	}
	if seen == 0 || len(candidates) == 0 {
		return domain.TypeText
	}
	return candidates[0]
}

// inferColumn converts raw cells into a typed column. Null tokens become nil.
func inferColumn(name string, raw []string, sample int) domain.Column {
	for _, typ := range widening[sampleType(raw, sample)] {
		if values, ok := convertAll(raw, parsers[typ]); ok {
			return domain.Column{Name: name, Type: typ, Values: values}
		}
	}
	values, _ := convertAll(raw, parseText)
	return domain.Column{Name: name, Type: domain.TypeText, Values: values}
}

func convertAll(raw []string, parse cellParser) ([]any, bool) {
	values := make([]any, len(raw))
	for i, s := range raw {
		if isNullToken(s) {
			continue
		}
		v, ok := parse(s)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// formatCell renders a value in the canonical text form the readers parse
// back to the same type. Floats always carry a decimal point or exponent so
// a whole-number float is not re-read as an integer.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case string:
		return x
	}
	return ""
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
