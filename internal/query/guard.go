package query

import (
	"errors"
	"strings"
)

var (
	ErrEmptySQL           = errors.New("sql is required")
	ErrNotReadOnly        = errors.New("only read-only SELECT/WITH queries are allowed")
	ErrMultipleStatements = errors.New("multiple statements are not allowed")
)

var readOnlyPrefixes = []string{"select", "with", "explain", "values"}

// CheckReadOnly rejects statements that do not start with a read-only
// keyword, and any input carrying more than one statement. Comments are
// ignored; the only PRAGMA allowed is table_info(...).
func CheckReadOnly(sqlText string) error {
	normalized := strings.ToLower(StripTrailingSemicolons(stripComments(sqlText)))
	if normalized == "" {
		return ErrEmptySQL
	}
	if strings.Contains(stripQuoted(normalized), ";") {
		return ErrMultipleStatements
	}
	normalized = strings.TrimLeft(normalized, "( \t\r\n")
	for _, prefix := range readOnlyPrefixes {
		if hasKeywordPrefix(normalized, prefix) {
			return nil
		}
	}
	if hasKeywordPrefix(normalized, "pragma") && isTableInfoPragma(normalized[len("pragma"):]) {
		return nil
	}
	return ErrNotReadOnly
}

// isTableInfoPragma matches the text after PRAGMA against
// "[schema.]table_info (".
func isTableInfoPragma(rest string) bool {
	rest = strings.TrimSpace(rest)
	name := rest
	if i := strings.IndexFunc(rest, func(r rune) bool { return r != '.' && (r > 127 || !isIdentByte(byte(r))) }); i >= 0 {
		name, rest = rest[:i], rest[i:]
	} else {
		rest = ""
	}
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		name = name[dot+1:]
	}
	return name == "table_info" && strings.HasPrefix(strings.TrimSpace(rest), "(")
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func hasKeywordPrefix(text, keyword string) bool {
	if !strings.HasPrefix(text, keyword) {
		return false
	}
	return len(text) == len(keyword) || !isIdentByte(text[len(keyword)])
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// stripComments replaces "--" line comments and "/* */" block comments
// outside quoted text with a single space.
func stripComments(text string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
		case c == '\'' || c == '"' || c == '`':
			quote = c
			b.WriteByte(c)
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			for i < len(text) && text[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				i = len(text)
			} else {
				i += end + 3
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// stripQuoted blanks out string literals and quoted identifiers so a ';'
// inside them is not mistaken for a statement separator.
func stripQuoted(text string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
