package cmds

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var interpreters = map[string][]string{
	"python":     {"python3", "-c"},
	"python3":    {"python3", "-c"},
	"py":         {"python3", "-c"},
	"bash":       {"bash", "-c"},
	"sh":         {"sh", "-c"},
	"shell":      {"bash", "-c"},
	"zsh":        {"zsh", "-c"},
	"javascript": {"node", "-e"},
	"js":         {"node", "-e"},
}

// runCode executes a confirmed code block and returns its combined output.
func runCode(ctx context.Context, block *llm.CodeBlock) (string, error) {
	interpreter, ok := interpreters[strings.ToLower(block.Language)]
	if !ok {
		return "", errors.Errorf("don't know how to run %q code", block.Language)
	}

	cmd := exec.CommandContext(ctx, interpreter[0], append(interpreter[1:], block.Code)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	log.Debug().Str("language", block.Language).Str("interpreter", interpreter[0]).Msg("running code block")
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// a failing program still produced output the agent should see
		return out.String(), nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "could not run %s", interpreter[0])
	}
	return out.String(), nil
}
