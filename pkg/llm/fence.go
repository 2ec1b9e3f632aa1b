package llm

import "strings"

const fence = "```"

// FenceSplitter splits streamed markdown into assistant and code chunks.
// Text is emitted as soon as it cannot be part of a fence line; the start of
// a line is held back only while it could still become a fence. When the
// first code block closes a CONFIRM chunk is emitted and the splitter stops
// accepting input.
type FenceSplitter struct {
	raw      strings.Builder
	line     string
	emitted  int
	inCode   bool
	language string
	code     strings.Builder
	done     bool
}

func NewFenceSplitter() *FenceSplitter {
	return &FenceSplitter{}
}

// Confirmed reports whether a code block has been closed.
func (s *FenceSplitter) Confirmed() bool {
	return s.done
}

func (s *FenceSplitter) key() Key {
	if s.inCode {
		return KeyCode
	}
	return KeyAssistant
}

func (s *FenceSplitter) Push(delta string) []Chunk {
	if s.done || delta == "" {
		return nil
	}

	var ret []Chunk
	s.line += delta
	for !s.done {
		nl := strings.IndexByte(s.line, '\n')
		if nl < 0 {
			break
		}
		full := s.line[:nl+1]
		s.line = s.line[nl+1:]
		ret = append(ret, s.completeLine(full)...)
	}
	if s.done {
		return ret
	}

	if s.line != "" && (s.emitted > 0 || !mightBeFence(s.line)) {
		ret = append(ret, s.emit(s.line[s.emitted:])...)
		s.emitted = len(s.line)
	}
	return ret
}

// Flush ends the stream. An unterminated code block is confirmed as is.
func (s *FenceSplitter) Flush() []Chunk {
	if s.done {
		return nil
	}

	var ret []Chunk
	if s.line != "" {
		if s.emitted == 0 && isFence(s.line) {
			ret = append(ret, s.handleFence(s.line)...)
		} else {
			ret = append(ret, s.emit(s.line[s.emitted:])...)
		}
		s.line = ""
		s.emitted = 0
	}
	if s.inCode && !s.done {
		ret = append(ret, s.confirm())
	}
	return ret
}

func (s *FenceSplitter) completeLine(full string) []Chunk {
	defer func() { s.emitted = 0 }()

	if s.emitted == 0 && isFence(full) {
		return s.handleFence(full)
	}
	return s.emit(full[s.emitted:])
}

func (s *FenceSplitter) handleFence(line string) []Chunk {
	info := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "`"))

	if !s.inCode {
		s.raw.WriteString(line)
		s.inCode = true
		s.language = info
		return nil
	}
	if info == "" {
		s.raw.WriteString(line)
		return []Chunk{s.confirm()}
	}
	// a fence with an info string cannot close a block
	return s.emit(line)
}

func (s *FenceSplitter) emit(text string) []Chunk {
	if text == "" {
		return nil
	}
	s.raw.WriteString(text)
	if s.inCode {
		s.code.WriteString(text)
	}
	return []Chunk{{Key: s.key(), Text: text}}
}

func (s *FenceSplitter) confirm() Chunk {
	s.done = true
	s.inCode = false

	block := &CodeBlock{
		Language: s.language,
		Code:     strings.TrimSuffix(s.code.String(), "\n"),
	}
	if parsed, ok := TrailingCodeBlock(s.raw.String()); ok {
		block = parsed
	}
	return Chunk{Key: KeyConfirm, Code: block}
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " "), fence)
}

func mightBeFence(partial string) bool {
	t := strings.TrimLeft(partial, " ")
	if len(t) < len(fence) {
		return strings.HasPrefix(fence, t)
	}
	return strings.HasPrefix(t, fence)
}
