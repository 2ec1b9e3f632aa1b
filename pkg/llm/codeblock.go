package llm

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// TrailingCodeBlock parses markdown and returns its last block if it is a fenced code block.
func TrailingCodeBlock(markdown string) (*CodeBlock, bool) {
	source := []byte(markdown)
	document := goldmark.DefaultParser().Parse(text.NewReader(source))

	last, ok := document.LastChild().(*ast.FencedCodeBlock)
	if !ok {
		return nil, false
	}
	return fencedCodeBlock(last, source), true
}

// CodeBlocks returns every fenced code block of a markdown document.
func CodeBlocks(markdown string) []*CodeBlock {
	source := []byte(markdown)
	document := goldmark.DefaultParser().Parse(text.NewReader(source))

	var ret []*CodeBlock
	_ = ast.Walk(document, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if v, ok := n.(*ast.FencedCodeBlock); ok && entering {
			ret = append(ret, fencedCodeBlock(v, source))
		}
		return ast.WalkContinue, nil
	})
	return ret
}

func fencedCodeBlock(v *ast.FencedCodeBlock, source []byte) *CodeBlock {
	var sb strings.Builder
	lines := v.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		sb.Write(segment.Value(source))
	}
	return &CodeBlock{
		Language: string(v.Language(source)),
		Code:     strings.TrimSuffix(sb.String(), "\n"),
	}
}
