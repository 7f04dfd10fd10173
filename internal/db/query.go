package db

import (
	"fmt"
	"strings"
)

// TagEq builds an exact TAG match clause: @field:{value}.
func TagEq(field, value string) string {
	return fmt.Sprintf("@%s:{%s}", field, EscapeTag(value))
}

// NumericRange builds a NUMERIC range clause. Bounds use FT syntax:
// "-inf", "+inf", "10" (inclusive) or "(10" (exclusive).
func NumericRange(field, lower, upper string) string {
	return fmt.Sprintf("@%s:[%s %s]", field, lower, upper)
}

// Not negates a clause.
func Not(clause string) string {
	if clause == "" {
		return ""
	}
	return "-" + clause
}

// And joins non-empty clauses; no clauses matches everything.
func And(clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// EscapeTag escapes TAG query punctuation.
func EscapeTag(value string) string {
	return tagEscaper.Replace(value)
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"/", "\\/",
	"|", "\\|",
	" ", "\\ ",
)
