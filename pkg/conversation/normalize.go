package conversation

import "strings"

const EmptyOutputPlaceholder = "The code executed without any output"

// NormalizeContent applies the per-role cleanup done before a message is stored.
// It returns ErrEmptyContent when nothing is left to store.
func NormalizeContent(role Role, content string) (string, error) {
	switch role {
	case RoleAssistant:
		content = strings.TrimSpace(content)
		content = strings.Trim(content, `"`)
		content = strings.TrimSpace(content)
	case RoleOutput:
		if strings.TrimSpace(content) == "" {
			return EmptyOutputPlaceholder, nil
		}
	}

	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}
