package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"aggregator/aggregator/chat"
	"aggregator/aggregator/client"
	"aggregator/aggregator/utils/color"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

const helpText = `Commands:
  /attach <path>...  attach files to the next message
  /files             list pending attachments
  /remove <n>        drop pending attachment n
  /model [id]        show or change the model
  /history           print the conversation
  /export [dir]      save the conversation as chat-YYYY-MM-DD.txt
  /copy [n]          copy message n (default: last answer) to the clipboard
  /new               start a new session
  /clear             clear the screen list without a new session
  /help              show this help
  /exit              quit`

// repl drives one coordinator from line input.
type repl struct {
	coord    *chat.Coordinator
	out      io.Writer
	renderer *glamour.TermRenderer
}

func runChat(cmd *cobra.Command, args []string) error {
	store, err := chat.OpenFileSessionStore(statePath)
	if err != nil {
		return err
	}
	api := client.New(serverURL)
	if authToken != "" {
		api = api.WithToken(authToken)
	}
	coord := chat.New(chat.Options{
		Session:   store,
		Model:     api,
		History:   api,
		Persister: api,
		ModelID:   modelID,
		Stream:    !noStream,
	})
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := coord.Init(ctx); err != nil {
		return err
	}
	if modelID != "" {
		if err := coord.SetModel(modelID); err != nil {
			return err
		}
	}
	defer coord.Flush()

	r := &repl{coord: coord, out: cmd.OutOrStdout()}
	if markdown {
		r.renderer, _ = glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	}

	fmt.Fprintf(r.out, "%s %s\n", color.ColorInfo("session"), coord.SessionID())
	if n := len(coord.Messages()); n > 0 {
		fmt.Fprintf(r.out, "%s\n", color.ColorInfo(fmt.Sprintf("restored %d messages, /history to show them", n)))
	}
	fmt.Fprintln(r.out, color.ColorInfo("type /help for commands"))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(r.out, color.ColorPrompt(r.prompt()))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		quit, err := r.handle(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintln(r.out, color.ColorError(err.Error()))
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) prompt() string {
	if n := len(r.coord.PendingAttachments()); n > 0 {
		return fmt.Sprintf("[%s +%d] > ", r.coord.ModelID(), n)
	}
	return fmt.Sprintf("[%s] > ", r.coord.ModelID())
}

// parseCommand splits "/name a b" into its parts. ok is false for plain text.
func parseCommand(line string) (name string, args []string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", nil, false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	name, args, ok := parseCommand(line)
	if !ok {
		if strings.TrimSpace(line) == "" && len(r.coord.PendingAttachments()) == 0 {
			return false, nil
		}
		return false, r.send(ctx, line)
	}

	switch name {
	case "exit", "quit":
		return true, nil
	case "help":
		fmt.Fprintln(r.out, helpText)
	case "attach":
		if len(args) == 0 {
			return false, errors.New("usage: /attach <path>...")
		}
		files, err := r.coord.AttachFiles(ctx, args...)
		if err != nil {
			return false, err
		}
		for _, f := range files {
			fmt.Fprintln(r.out, color.ColorInfo(f.Summary()))
		}
	case "files":
		pending := r.coord.PendingAttachments()
		if len(pending) == 0 {
			fmt.Fprintln(r.out, "no attachments")
		}
		for i, f := range pending {
			fmt.Fprintf(r.out, "%d. %s\n", i+1, f.Summary())
		}
	case "remove":
		if len(args) != 1 {
			return false, errors.New("usage: /remove <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("usage: /remove <n>: %w", err)
		}
		return false, r.coord.RemoveAttachment(n - 1)
	case "model":
		if len(args) == 0 {
			fmt.Fprintln(r.out, color.ColorModel(r.coord.ModelID()))
			return false, nil
		}
		return false, r.coord.SetModel(args[0])
	case "history":
		fmt.Fprintln(r.out, r.coord.Transcript())
	case "export":
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		path, err := r.coord.Export(dir)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, color.ColorInfo("saved "+path))
	case "copy":
		i, err := r.copyIndex(args)
		if err != nil {
			return false, err
		}
		if err := r.coord.Copy(i); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, color.ColorInfo("copied"))
	case "new":
		id, err := r.coord.NewSession(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s %s\n", color.ColorInfo("new session"), id)
	case "clear":
		r.coord.Clear()
	default:
		return false, fmt.Errorf("unknown command /%s, try /help", name)
	}
	return false, nil
}

// copyIndex resolves /copy's optional 1-based argument; without one it picks
// the last assistant message.
func (r *repl) copyIndex(args []string) (int, error) {
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, fmt.Errorf("usage: /copy [n]: %w", err)
		}
		return n - 1, nil
	}
	msgs := r.coord.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant {
			return i, nil
		}
	}
	return 0, chat.ErrNoSuchMessage
}

func (r *repl) send(ctx context.Context, text string) error {
	reply, err := r.coord.Send(ctx, text)
	if err != nil {
		return err
	}

	// Ctrl-C stops the current answer, not the program
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			reply.Cancel()
		case <-reply.Done():
		}
	}()

	live := r.renderer == nil
	if live {
		fmt.Fprint(r.out, color.ColorAssistant("assistant: "))
		for chunk := range reply.Chunks() {
			fmt.Fprint(r.out, chunk)
		}
	}
	msg, err := reply.Wait()
	switch {
	case err != nil && live:
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, color.ColorWarning(msg.Content))
	case err != nil:
		fmt.Fprintln(r.out, color.ColorWarning(msg.Content))
	case live:
		fmt.Fprintln(r.out)
	default:
		rendered, rerr := r.renderer.Render(msg.Content)
		if rerr != nil {
			rendered = msg.Content + "\n"
		}
		fmt.Fprint(r.out, rendered)
	}
	if err == nil && msg.Model != "" {
		fmt.Fprintln(r.out, color.ColorModel("("+msg.Model+")"))
	}
	return nil
}
