package instructor

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// applyValidationContext fills placeholders in the request messages. Context
// entry i is applied to message i; a single context therefore only reaches
// the first message. Message contents that are not strings are left as is.
func applyValidationContext(body []byte, vc map[string]any) ([]byte, error) {
	if vc == nil {
		return body, nil
	}
	contexts := []map[string]any{vc}
	for i, values := range contexts {
		path := fmt.Sprintf("messages.%d.content", i)
		content := gjson.GetBytes(body, path)
		if !content.Exists() {
			return nil, &TemplatingError{Message: fmt.Sprintf("no message at index %d to apply the validation context to", i)}
		}
		if content.Type != gjson.String {
			continue
		}
		text, err := formatNamed(content.String(), values)
		if err != nil {
			return nil, err
		}
		if body, err = sjson.SetBytes(body, path, text); err != nil {
			return nil, &TemplatingError{Message: err.Error()}
		}
	}
	return body, nil
}

// formatNamed expands named references in a template:
//
//	%<name>s, %<n>05.2f  formatted reference, flags/width/precision around the name
//	%{name}              plain reference
//	%%                   literal percent
//
// A reference to a key missing from values is an error, as is any other
// '%' sequence.
func formatNamed(tmpl string, values map[string]any) (string, error) {
	var sb strings.Builder
	sb.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(tmpl) {
			return "", &TemplatingError{Message: "incomplete format specifier at end of template"}
		}

		switch tmpl[i+1] {
		case '%':
			sb.WriteByte('%')
			i++
			continue
		case '{':
			end := strings.IndexByte(tmpl[i+2:], '}')
			if end < 0 {
				return "", &TemplatingError{Message: "unterminated %{ reference"}
			}
			key := tmpl[i+2 : i+2+end]
			v, ok := values[key]
			if !ok {
				return "", &TemplatingError{Key: key}
			}
			sb.WriteString(toText(v))
			i += 2 + end
			continue
		}

		spec, key, verb, n, err := scanSpec(tmpl[i+1:])
		if err != nil {
			return "", err
		}
		v, ok := values[key]
		if !ok {
			return "", &TemplatingError{Key: key}
		}
		out, err := formatValue(spec, verb, v)
		if err != nil {
			return "", err
		}
		sb.WriteString(out)
		i += n
	}
	return sb.String(), nil
}

// scanSpec reads "[flags][width][.prec]<name>[flags][width][.prec]verb" from s
// and returns the printf spec without the name, the name, the verb and the
// number of bytes consumed.
func scanSpec(s string) (spec, key string, verb byte, n int, err error) {
	var sb strings.Builder
	named := false
	for n < len(s) {
		c := s[n]
		switch {
		case c == '<' && !named:
			end := strings.IndexByte(s[n+1:], '>')
			if end < 0 {
				return "", "", 0, 0, &TemplatingError{Message: "unterminated %< reference"}
			}
			key = s[n+1 : n+1+end]
			named = true
			n += end + 2
		case strings.IndexByte("-+ 0#.", c) >= 0 || (c >= '0' && c <= '9'):
			sb.WriteByte(c)
			n++
		default:
			if !named {
				return "", "", 0, 0, &TemplatingError{Message: fmt.Sprintf("malformed format string - %%%c", c)}
			}
			return sb.String(), key, c, n + 1, nil
		}
	}
	if named {
		// A trailing "%<name>" without a verb renders as a string.
		return sb.String(), key, 's', n, nil
	}
	return "", "", 0, 0, &TemplatingError{Message: "incomplete format specifier"}
}

func formatValue(spec string, verb byte, v any) (string, error) {
	switch verb {
	case 's', 'p':
		return fmt.Sprintf("%"+spec+"s", toText(v)), nil
	case 'd', 'i', 'u':
		i, ok := toInteger(v)
		if !ok {
			return "", &TemplatingError{Message: fmt.Sprintf("invalid value for Integer(): %v", v)}
		}
		return fmt.Sprintf("%"+spec+"d", i), nil
	case 'f', 'e', 'E', 'g', 'G':
		f, ok := toFloat(v)
		if !ok {
			return "", &TemplatingError{Message: fmt.Sprintf("can't convert %T into Float", v)}
		}
		return fmt.Sprintf("%"+spec+string(verb), f), nil
	case 'x', 'X', 'o', 'b':
		i, ok := toInteger(v)
		if !ok {
			return "", &TemplatingError{Message: fmt.Sprintf("invalid value for Integer(): %v", v)}
		}
		return fmt.Sprintf("%"+spec+string(verb), i), nil
	case 'c':
		if s, ok := v.(string); ok && s != "" {
			return fmt.Sprintf("%"+spec+"s", s[:1]), nil
		}
		i, ok := toInteger(v)
		if !ok {
			return "", &TemplatingError{Message: fmt.Sprintf("%%c requires a character, got %v", v)}
		}
		return fmt.Sprintf("%"+spec+"c", rune(i)), nil
	}
	return "", &TemplatingError{Message: fmt.Sprintf("malformed format string - %%%c", verb)}
}

func toText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(math.Floor(float64(n))), true
	case float64:
		return int64(math.Floor(n)), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := toInteger(v); ok {
		return float64(i), true
	}
	return 0, false
}
