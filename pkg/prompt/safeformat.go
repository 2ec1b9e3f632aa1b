package prompt

import "strings"

// SafeFormat substitutes {key} placeholders from values. Doubled braces
// produce literal braces. Placeholders without a value, and unbalanced
// braces, are kept verbatim so that templates survive several passes.
func SafeFormat(template string, values map[string]string) string {
	var sb strings.Builder
	sb.Grow(len(template))

	for i := 0; i < len(template); {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			sb.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			sb.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexAny(template[i+1:], "{}")
			if end < 0 || template[i+1+end] != '}' {
				sb.WriteByte(c)
				i++
				continue
			}
			key := template[i+1 : i+1+end]
			if v, ok := values[key]; ok {
				sb.WriteString(v)
			} else {
				sb.WriteString(template[i : i+end+2])
			}
			i += end + 2
		default:
			sb.WriteByte(c)
			i++
		}
	}

	return sb.String()
}
