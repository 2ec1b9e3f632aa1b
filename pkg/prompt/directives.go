package prompt

import "strings"

type directive struct {
	token       string
	replacement string
}

// directives are expanded in order. Later entries expand tokens introduced
// by earlier ones, so [ITSOC] and [3S] must stay after the tokens using them.
var directives = []directive{
	{"[RES]", "[ITSOC] very briefly respond to the user in no more than [3S] "},
	{"[INF]", "[ITSOC] very briefly inform the user in no more than [3S] "},
	{"[ANS]", "[ITSOC] very briefly respond to the user considering the following information: "},
	{"[Q]", "[ITSOC] Ask the user the following question: "},
	{"[SAY]", "[ITSOC], say: "},
	{"[MI]", "[ITSOC] Ask for the following information: "},
	{"[ITSOC]", "In the style of {char_name}{verb}, spoken like a genuine dialogue "},
	{"[WOFA]", "Without offering any further assistance, "},
	{"[3S]", "Three sentences"},
}

const (
	instructionOpen  = "[INSTRUCTIONS-FOR-NEXT-RESPONSE]"
	instructionClose = "[/INSTRUCTIONS-FOR-NEXT-RESPONSE]"
)

func ExpandDirectives(s string) string {
	for _, d := range directives {
		s = strings.ReplaceAll(s, d.token, d.replacement)
	}
	return s
}

// FormatInstruction expands directives and wraps the result in instruction
// tags. An empty message stays empty.
func FormatInstruction(s string) string {
	s = ExpandDirectives(s)
	if s == "" {
		return ""
	}
	return instructionOpen + "\n" + s + "\n" + instructionClose
}
