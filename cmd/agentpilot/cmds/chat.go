package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/go-go-golems/agentpilot/pkg/chat"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/events"
	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// confirmed code blocks answered in a row before control returns to the user
const maxCodeRounds = 10

type chatSettings struct {
	printEvents bool
	autoRun     bool
}

func NewChatCommand() *cobra.Command {
	s := &chatSettings{}
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the members of a conversation",
		Long: "Chat with the members of a conversation. With a message argument, " +
			"the message is sent, answered and the command exits. Ctrl-C stops the running response.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), s, strings.Join(args, " "))
		},
	}
	cmd.Flags().BoolVar(&s.printEvents, "print-events", false, "Print the raw response events")
	cmd.Flags().BoolVar(&s.autoRun, "auto-run", false, "Run code blocks without asking")
	return cmd
}

func runChat(ctx context.Context, s *chatSettings, message string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := a.loadChat(ctx)
	if err != nil {
		return err
	}
	if len(c.Members()) == 0 {
		return errors.Errorf("conversation %d has no members, add one with `agentpilot agents add-member`", c.ContextID())
	}

	eg, ctx := errgroup.WithContext(ctx)

	if s.printEvents {
		router, err := events.NewEventRouter(events.WithOutput(os.Stderr))
		if err != nil {
			return err
		}
		defer func() {
			_ = router.Close()
		}()
		router.AddHandler("dump", events.DefaultTopic, router.DumpRawEvents)
		ctx = events.WithEventSinks(ctx, router.Sink(events.DefaultTopic))

		eg.Go(func() error {
			return router.Run(ctx)
		})
		<-router.Running()
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	defer signal.Stop(sigc)
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigc:
				log.Debug().Msg("stop requested")
				c.RequestStop()
			}
		}
	})

	eg.Go(func() error {
		err := c.RunPoller(ctx, a.settings.PollInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	eg.Go(func() error {
		defer cancel()
		r := &repl{chat: c, settings: s, out: os.Stdout}
		if message != "" {
			return r.turn(ctx, message)
		}
		return r.run(ctx, os.Stdin)
	})

	return eg.Wait()
}

type repl struct {
	chat     *chat.Context
	settings *chatSettings
	out      io.Writer
}

var promptColor = color.New(color.FgGreen, color.Bold)

func (r *repl) run(ctx context.Context, in io.Reader) error {
	// a resent message is still waiting for its replies
	role, ok, err := r.chat.LastRole(ctx)
	if err != nil {
		return err
	}
	if ok && role == conversation.RoleUser {
		if err := r.answer(ctx); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(in)
	for {
		_, _ = promptColor.Fprint(r.out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			ok, err := confirm("Delete all messages and branches of this conversation?", false)
			if err != nil {
				return err
			}
			if ok {
				if err := r.chat.Clear(ctx); err != nil {
					return err
				}
			}
			continue
		}

		if err := r.turn(ctx, line); err != nil {
			if errors.Is(err, chat.ErrResponding) {
				_, _ = color.New(color.FgRed).Fprintln(r.out, "still responding")
				continue
			}
			return err
		}
	}
}

// turn sends content and lets the members answer, running confirmed code blocks in between.
func (r *repl) turn(ctx context.Context, content string) error {
	if _, err := r.chat.Send(ctx, content); err != nil {
		if errors.Is(err, conversation.ErrEmptyContent) {
			return nil
		}
		return err
	}
	return r.answer(ctx)
}

func (r *repl) answer(ctx context.Context) error {
	for round := 0; round < maxCodeRounds; round++ {
		block, err := r.respond(ctx)
		if err != nil || block == nil {
			return err
		}

		run := r.settings.autoRun
		if !run {
			run, err = confirm(fmt.Sprintf("Run this %s code?", block.Language), true)
			if err != nil {
				return err
			}
		}
		if !run {
			return nil
		}

		output, err := runCode(ctx, block)
		if err != nil {
			output = err.Error()
		}
		msg, err := r.chat.AddOutput(ctx, output)
		if err != nil {
			return err
		}
		printMessage(r.out, msg, nil)
	}
	return nil
}

// respond prints the streamed replies and returns the code block awaiting confirmation, if any.
func (r *repl) respond(ctx context.Context) (*llm.CodeBlock, error) {
	names := memberNames(r.chat)
	codeColor := roleColors[conversation.RoleCode]
	current := int64(-1)

	responses, err := r.chat.Respond(ctx, func(memberID int64, c llm.Chunk) {
		if memberID != current {
			if current != -1 {
				_, _ = fmt.Fprintln(r.out)
			}
			_, _ = fmt.Fprintf(r.out, "%s ", label(conversation.RoleAssistant, memberID, names))
			current = memberID
		}
		switch c.Key {
		case llm.KeyAssistant:
			_, _ = fmt.Fprint(r.out, c.Text)
		case llm.KeyCode:
			_, _ = codeColor.Fprint(r.out, c.Text)
		case llm.KeyConfirm:
			_, _ = fmt.Fprintln(r.out)
		}
	})
	_, _ = fmt.Fprintln(r.out)
	if err != nil {
		return nil, err
	}

	for _, resp := range responses {
		if resp.Stopped {
			_, _ = color.New(color.FgRed).Fprintln(r.out, "stopped")
			return nil, nil
		}
		if resp.Code != nil {
			return resp.Code, nil
		}
	}
	return nil, nil
}
