// Package chatcmder provides the chat command for interactive streaming chat
// through a chatrelay server.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/papercomputeco/chatrelay/pkg/chatclient"
	"github.com/papercomputeco/chatrelay/pkg/cliui"
	"github.com/papercomputeco/chatrelay/pkg/config"
	"github.com/papercomputeco/chatrelay/pkg/dotdir"
	"github.com/papercomputeco/chatrelay/pkg/logger"
)

const (
	exitCommand = "/exit"
	newCommand  = "/new"
)

var chatFlagKeys = []string{
	config.FlagTarget,
	config.FlagModel,
	config.FlagAssistantID,
	config.FlagBufferLength,
	config.FlagHidden,
}

type chatCommander struct {
	target       string
	model        string
	assistantID  string
	bufferLength uint
	hidden       bool

	resume   bool
	markdown bool
	debug    bool

	configDir string
	in        io.Reader
	out       io.Writer
	logger    *slog.Logger
	dotdir    *dotdir.Manager
}

const chatLongDesc string = `Start an interactive chat session through a chatrelay server.

Replies stream to the terminal as they arrive. Press Ctrl+C while a reply is
streaming to stop it; the partial reply is kept. Type /new to start a fresh
conversation and /exit or Ctrl+D to quit.

The conversation is saved to the .chatrelay/ directory after every turn.
Pass --resume to continue the saved conversation.

Examples:
  chatrelay chat --model gpt-4o
  chatrelay chat --assistant-id 3f2b8a4e-9c1d-4e5f-8a7b-6c5d4e3f2a1b
  chatrelay chat --resume --markdown`

const chatShortDesc string = "Interactive streaming chat through chatrelay"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}
	var v *viper.Viper

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			var err error
			v, err = config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, chatFlagKeys)

			cmder.target = v.GetString("client.target")
			cmder.model = v.GetString("client.model")
			cmder.assistantID = v.GetString("client.assistant_id")
			cmder.bufferLength = v.GetUint("client.buffer_length")
			cmder.hidden = v.GetBool("client.hidden")

			if cmder.model == "" && cmder.assistantID == "" {
				return errors.New("a model or an assistant id is required (--model or --assistant-id)")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagAssistantID, &cmder.assistantID)
	config.AddUintFlag(cmd, config.Flags, config.FlagBufferLength, &cmder.bufferLength)
	config.AddBoolFlag(cmd, config.Flags, config.FlagHidden, &cmder.hidden)
	cmd.Flags().BoolVarP(&cmder.resume, "resume", "r", false, "Continue the saved conversation")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render replies as markdown when writing to a terminal")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatPretty),
		logger.WithWriter(os.Stderr),
		logger.WithComponent("chat"),
	)
	c.dotdir = dotdir.NewManager()

	client := chatclient.New(c.target, chatclient.WithLogger(c.logger))

	thread, err := c.openThread(client)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "  %s %s\n\n",
		cliui.KeyStyle.Render(c.selectorLabel()),
		cliui.NameStyle.Render(c.selectorValue()),
	)
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. Ctrl+C stops a reply. /new, /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, cliui.UserPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case exitCommand:
			fmt.Fprintln(c.out)
			return nil
		case newCommand:
			thread = chatclient.NewThread(client, c.threadOptions())
			if err := c.dotdir.ClearThread(c.configDir); err != nil {
				c.logger.Warn("could not clear saved thread", "error", err)
			}
			fmt.Fprintf(c.out, "  %s New conversation\n\n", cliui.DimStyle.Render("●"))
			continue
		}

		if err := c.sendTurn(ctx, thread, input); err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n\n", cliui.FailMark, err)
		}

		if err := c.dotdir.SaveThread(thread.Snapshot(), c.configDir); err != nil {
			c.logger.Warn("could not save thread", "error", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

func (c *chatCommander) openThread(client *chatclient.Client) (*chatclient.Thread, error) {
	fmt.Fprintln(c.out)

	if !c.resume {
		fmt.Fprintf(c.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
		return chatclient.NewThread(client, c.threadOptions()), nil
	}

	state, err := c.dotdir.LoadThreadState(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("loading saved thread: %w", err)
	}
	if state == nil {
		fmt.Fprintf(c.out, "  %s No saved conversation, starting a new one\n", cliui.DimStyle.Render("●"))
		return chatclient.NewThread(client, c.threadOptions()), nil
	}

	fmt.Fprintf(c.out, "  %s Resuming %s %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(state.Title),
		cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(state.Messages))),
	)
	return chatclient.RestoreThread(client, c.threadOptions(), state), nil
}

// sendTurn streams one reply. Ctrl+C during the stream stops it rather than
// exiting the program.
func (c *chatCommander) sendTurn(ctx context.Context, thread *chatclient.Thread, input string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	width, render := c.renderWidth()
	if !render {
		fmt.Fprint(c.out, cliui.AssistantPrompt)
		err := thread.Send(turnCtx, input, func(piece string) {
			fmt.Fprint(c.out, piece)
		})
		c.printStopped(thread)
		fmt.Fprint(c.out, "\n\n")
		return err
	}

	spinner := cliui.StartSpinner(c.out, "Waiting for reply")
	received := 0
	err := thread.Send(turnCtx, input, func(piece string) {
		received += utf8.RuneCountInString(piece)
		spinner.SetMessage(fmt.Sprintf("Receiving reply (%d chars)", received))
	})
	spinner.Stop(err)
	if err != nil {
		return err
	}

	msgs := thread.Messages()
	reply := msgs[len(msgs)-1].Content
	rendered, rerr := cliui.RenderMarkdown(reply, width)
	if rerr != nil {
		c.logger.Debug("markdown render failed", "error", rerr)
	}
	fmt.Fprintln(c.out, rendered)
	c.printStopped(thread)
	return nil
}

func (c *chatCommander) printStopped(thread *chatclient.Thread) {
	msgs := thread.Messages()
	if len(msgs) > 0 && msgs[len(msgs)-1].Stopped {
		fmt.Fprintf(c.out, " %s", cliui.WarnStyle.Render("[stopped]"))
	}
}

// renderWidth reports whether replies should be rendered as markdown and the
// terminal width to wrap at.
func (c *chatCommander) renderWidth() (int, bool) {
	if !c.markdown {
		return 0, false
	}
	f, ok := c.out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0, true
	}
	return width, true
}

func (c *chatCommander) threadOptions() chatclient.ThreadOptions {
	hidden := c.hidden
	return chatclient.ThreadOptions{
		AssistantID:  c.assistantID,
		Model:        c.model,
		BufferLength: int(c.bufferLength),
		Hidden:       &hidden,
	}
}

func (c *chatCommander) selectorLabel() string {
	if c.assistantID != "" {
		return "Assistant:"
	}
	return "Model:"
}

func (c *chatCommander) selectorValue() string {
	if c.assistantID != "" {
		return c.assistantID
	}
	return c.model
}
