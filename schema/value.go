package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RawSuffix marks a string value as a raw SQL expression. EncodeValue
// strips it and emits the rest verbatim; DecodeValue appends it to
// default expressions it could not parse into a comparable scalar, so
// the differ compares them as opaque text.
const RawSuffix = "$raw"

// DefaultSchema is substituted into unqualified object names.
const DefaultSchema = "public"

var typeAliases = map[string]string{
	"character varying":           "varchar",
	"char varying":                "varchar",
	"character":                   "char",
	"integer":                     "int4",
	"int":                         "int4",
	"bigint":                      "int8",
	"smallint":                    "int2",
	"boolean":                     "bool",
	"double precision":            "float8",
	"real":                        "float4",
	"decimal":                     "numeric",
	"timestamp without time zone": "timestamp",
	"timestamp with time zone":    "timestamptz",
	"time without time zone":      "time",
	"time with time zone":         "timetz",
	"bit varying":                 "varbit",
}

type typeGroup int

const (
	groupOther typeGroup = iota
	groupJSON
	groupInteger
	groupBoolean
)

var typeGroups = map[string]typeGroup{
	"json":  groupJSON,
	"jsonb": groupJSON,
	"int2":  groupInteger,
	"int4":  groupInteger,
	"int8":  groupInteger,
	"bool":  groupBoolean,
}

// typeModifierRegexp matches length and array modifiers, e.g. "(255)",
// "(10,2)" or "[]".
var typeModifierRegexp = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)

// NormalizeType resolves a type name through the alias table to its
// canonical PostgreSQL name, preserving any length or array modifiers
// in their original text.
func NormalizeType(raw string) string {
	modifiers := typeModifierRegexp.FindAllString(raw, -1)
	base := strings.TrimSpace(typeModifierRegexp.ReplaceAllString(raw, ""))
	if alias, ok := typeAliases[strings.ToLower(base)]; ok {
		base = alias
	}
	return base + strings.Join(modifiers, "")
}

func groupOf(typeName string) typeGroup {
	base := strings.TrimSpace(typeModifierRegexp.ReplaceAllString(NormalizeType(typeName), ""))
	return typeGroups[strings.ToLower(base)]
}

// QuoteLiteral renders s as a PostgreSQL string literal. Single quotes
// are doubled; a backslash forces the E'' escape form with doubled
// backslashes. Must stay byte-compatible with PostgreSQL's literal
// parsing rules.
func QuoteLiteral(s string) string {
	value := strings.ReplaceAll(s, "'", "''")
	if strings.Contains(value, `\`) {
		value = strings.ReplaceAll(value, `\`, `\\`)
		return "E'" + value + "'"
	}
	return "'" + value + "'"
}

// EncodeValue renders a declarative value as literal SQL text. Numbers
// pass through unchanged, strings carrying RawSuffix are emitted
// verbatim, other strings are quoted, and anything else is
// JSON-serialized then quoted.
func EncodeValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(v)
	case string:
		if raw, ok := strings.CutSuffix(v, RawSuffix); ok {
			return raw
		}
		return QuoteLiteral(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return QuoteLiteral(fmt.Sprint(v))
		}
		return QuoteLiteral(string(b))
	}
}

var (
	quotedPayloadRegexp  = regexp.MustCompile(`^'((?:[^']|'')*)'`)
	escapedPayloadRegexp = regexp.MustCompile(`^[eE]'((?:[^'\\]|''|\\.)*)'`)
	digitsRegexp         = regexp.MustCompile(`^\d+$`)
)

// unquotePayload extracts the payload of a string literal in either the
// plain or the E'' escape form. The catalog reports backslash defaults
// in the plain form (standard_conforming_strings) while QuoteLiteral
// emits the E'' form, so both sides must decode to the same value.
func unquotePayload(raw string) (string, bool) {
	if m := escapedPayloadRegexp.FindStringSubmatch(raw); m != nil {
		// Quotes arrive doubled, never backslash-escaped, so undoubling
		// them first keeps the transformation an exact inverse of
		// QuoteLiteral.
		payload := strings.ReplaceAll(m[1], "''", "'")
		payload = strings.ReplaceAll(payload, `\\`, `\`)
		return payload, true
	}
	if m := quotedPayloadRegexp.FindStringSubmatch(raw); m != nil {
		return strings.ReplaceAll(m[1], "''", "'"), true
	}
	return "", false
}

// DecodeValue parses a catalog-supplied default expression back into a
// comparable value for the type's group. Expressions it cannot parse
// are returned as opaque text tagged with RawSuffix.
func DecodeValue(raw string, typeName string) any {
	switch groupOf(typeName) {
	case groupJSON:
		if payload, ok := unquotePayload(raw); ok {
			var v any
			if err := json.Unmarshal([]byte(payload), &v); err == nil {
				return v
			}
		}
		return raw + RawSuffix
	case groupInteger:
		if digitsRegexp.MatchString(raw) {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err == nil {
				return n
			}
		}
		return raw + RawSuffix
	case groupBoolean:
		switch raw {
		case "true":
			return true
		case "false":
			return false
		}
		return raw + RawSuffix
	default:
		if payload, ok := unquotePayload(raw); ok {
			return payload
		}
		return raw + RawSuffix
	}
}

var (
	nextvalRegexp      = regexp.MustCompile(`^nextval\('([^']+)'::regclass\)`)
	terminalCastRegexp = regexp.MustCompile(`::[a-zA-Z_][a-zA-Z0-9_ ]*(\[\])?$`)
)

// DefaultValueInformationSchema normalizes a default expression as
// rendered by the catalog. Sequence-backed defaults get the default
// schema inserted before the final name segment when the captured name
// is unqualified. A trailing explicit type cast is stripped only when
// it terminates the whole expression; casts nested inside parentheses
// are left untouched because the expression then ends with ')'.
func DefaultValueInformationSchema(expr string, defaultSchema string) string {
	if m := nextvalRegexp.FindStringSubmatch(expr); m != nil {
		name := m[1]
		if !strings.Contains(name, ".") {
			expr = strings.Replace(expr, "'"+name+"'", "'"+defaultSchema+"."+name+"'", 1)
		}
	}
	return terminalCastRegexp.ReplaceAllString(expr, "")
}

// SequenceNameFromDefault extracts the backing sequence name from a
// nextval() default expression.
func SequenceNameFromDefault(expr string) (string, bool) {
	m := nextvalRegexp.FindStringSubmatch(expr)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// QualifyName prefixes name with the default schema when unqualified.
func QualifyName(name string, defaultSchema string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return defaultSchema + "." + name
}

// SplitQualifiedName splits "schema.name" into its two parts, assuming
// the default schema when no qualifier is present.
func SplitQualifiedName(name string, defaultSchema string) (string, string) {
	if schema, rest, ok := strings.Cut(name, "."); ok {
		return schema, rest
	}
	return defaultSchema, name
}
