package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

func RenderRows(rows [][]any) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, value := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(RenderValue(value))
		}
		if len(row) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	}
	b.WriteByte(']')
	return b.String()
}

// RenderValue formats one cell the way RenderRows does.
func RenderValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "None"
	case string:
		return quoteString(typed)
	case []byte:
		return quoteString(string(typed))
	case bool:
		if typed {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(typed)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", typed)
	case float32:
		return renderFloat(float64(typed))
	case float64:
		return renderFloat(typed)
	case time.Time:
		return quoteString(typed.Format("2006-01-02 15:04:05"))
	case fmt.Stringer:
		return quoteString(typed.String())
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func renderFloat(value float64) string {
	switch {
	case math.IsNaN(value):
		return "nan"
	case math.IsInf(value, 1):
		return "inf"
	case math.IsInf(value, -1):
		return "-inf"
	}
	out := strconv.FormatFloat(value, 'f', -1, 64)
	if !strings.ContainsAny(out, ".e") {
		out += ".0"
	}
	return out
}

// quoteString uses single quotes unless the value contains a single quote
// and no double quote.
func quoteString(value string) string {
	quote := "'"
	if strings.Contains(value, "'") && !strings.Contains(value, `"`) {
		quote = `"`
	}
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	if quote == "'" {
		escaped = strings.ReplaceAll(escaped, "'", `\'`)
	}
	return quote + escaped + quote
}
