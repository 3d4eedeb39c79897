package logger

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const tmFmtWithMS = "2006-01-02 15:04:05.999"

// NumericPlaceholder matches $1 style bind variables
var NumericPlaceholder = regexp.MustCompile(`\$(\d+)`)

func isPrintable(s []byte) bool {
	for _, r := range s {
		if !unicode.IsPrint(rune(r)) {
			return false
		}
	}
	return true
}

// ExplainSQL inlines vars into sql for logging; it never produces executable text
func ExplainSQL(sql string, numericPlaceholder *regexp.Regexp, escaper string, vars ...interface{}) string {
	converted := make([]string, len(vars))
	for idx, v := range vars {
		if valuer, ok := v.(driver.Valuer); ok {
			v, _ = valuer.Value()
		}

		switch v := v.(type) {
		case nil:
			converted[idx] = "NULL"
		case bool:
			converted[idx] = strconv.FormatBool(v)
		case time.Time:
			converted[idx] = escaper + v.Format(tmFmtWithMS) + escaper
		case *time.Time:
			if v == nil {
				converted[idx] = "NULL"
			} else {
				converted[idx] = escaper + v.Format(tmFmtWithMS) + escaper
			}
		case []byte:
			if len(v) > 64 || !isPrintable(v) {
				converted[idx] = fmt.Sprintf("%s<binary %d bytes>%s", escaper, len(v), escaper)
			} else {
				converted[idx] = escaper + strings.ReplaceAll(string(v), escaper, "\\"+escaper) + escaper
			}
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			converted[idx] = fmt.Sprintf("%d", v)
		case float64, float32:
			converted[idx] = fmt.Sprintf("%.6f", v)
		case string:
			converted[idx] = escaper + strings.ReplaceAll(v, escaper, "\\"+escaper) + escaper
		default:
			converted[idx] = escaper + strings.ReplaceAll(fmt.Sprint(v), escaper, "\\"+escaper) + escaper
		}
	}

	if numericPlaceholder == nil {
		var idx int
		var newSQL strings.Builder

		for _, v := range []byte(sql) {
			if v == '?' && idx < len(converted) {
				newSQL.WriteString(converted[idx])
				idx++
			} else {
				newSQL.WriteByte(v)
			}
		}

		return newSQL.String()
	}

	return numericPlaceholder.ReplaceAllStringFunc(sql, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil || n < 1 || n > len(converted) {
			return m
		}
		return converted[n-1]
	})
}
