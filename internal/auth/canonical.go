package auth

import (
	"bytes"
	"errors"
	"io"
	"math"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

const hexDigits = "0123456789abcdef"

// CanonicalString 拼接待签名字符串 METHOD\nPATH\nQUERY\nBODY\nTIMESTAMP\nCLIENT_ID。
func CanonicalString(method, path, query, body, timestamp, clientID string) string {
	var b strings.Builder
	b.Grow(len(method) + len(path) + len(query) + len(body) + len(timestamp) + len(clientID) + 5)
	for i, part := range []string{method, path, query, body, timestamp} {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(part)
	}
	b.WriteByte('\n')
	b.WriteString(clientID)
	return b.String()
}

// CanonicalBody 返回参与签名的请求体。
//
// 键按码点排序、紧凑分隔、非 ASCII 字符转义为 \uXXXX，与
// json.dumps(sort_keys=True, separators=(',', ':')) 的输出逐字节一致。
// GET 请求、空白请求体以及 null、false、0、""、{}、[] 均视为空。
func CanonicalBody(method string, body []byte) (string, error) {
	if strings.EqualFold(method, http.MethodGet) || len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", malformed("请求体不是合法的 JSON")
	}
	var extra interface{}
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return "", malformed("请求体包含多余内容")
	}
	if isFalsy(v) {
		return "", nil
	}

	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func isFalsy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	case map[string]interface{}:
		return len(x) == 0
	case []interface{}:
		return len(x) == 0
	}
	return false
}

func writeValue(buf *bytes.Buffer, v interface{}) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeString(buf, x)
	case json.Number:
		s, err := formatNumber(string(x))
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		// UTF-8 字节序与码点序一致。
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := writeValue(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return malformed("请求体包含无法识别的值")
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20 || (r >= 0x7f && r < utf8.RuneSelf):
				writeEscape(buf, r)
			case r < utf8.RuneSelf:
				buf.WriteByte(byte(r))
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				writeEscape(buf, hi)
				writeEscape(buf, lo)
			default:
				writeEscape(buf, r)
			}
		}
	}
	buf.WriteByte('"')
}

func writeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[r>>12&0xf])
	buf.WriteByte(hexDigits[r>>8&0xf])
	buf.WriteByte(hexDigits[r>>4&0xf])
	buf.WriteByte(hexDigits[r&0xf])
}

// formatNumber 整数原样输出，浮点数按最短往返表示输出，整数值的浮点保留 .0。
func formatNumber(lit string) (string, error) {
	if !strings.ContainsAny(lit, ".eE") {
		n, ok := new(big.Int).SetString(lit, 10)
		if !ok {
			return "", malformed("请求体包含非法数字")
		}
		return n.String(), nil
	}

	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) && math.IsInf(f, 0) {
			if f > 0 {
				return "Infinity", nil
			}
			return "-Infinity", nil
		}
		return "", malformed("请求体包含非法数字")
	}
	return formatFloat(f), nil
}

func formatFloat(f float64) string {
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, expPart, _ := strings.Cut(sci, "e")
	exp, _ := strconv.Atoi(expPart)
	if exp < -4 || exp >= 16 {
		return sci
	}

	neg := strings.HasPrefix(mantissa, "-")
	digits := strings.Replace(strings.TrimPrefix(mantissa, "-"), ".", "", 1)

	var out string
	switch {
	case exp < 0:
		out = "0." + strings.Repeat("0", -exp-1) + digits
	case exp+1 >= len(digits):
		out = digits + strings.Repeat("0", exp+1-len(digits)) + ".0"
	default:
		out = digits[:exp+1] + "." + digits[exp+1:]
	}
	if neg {
		out = "-" + out
	}
	return out
}
