package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"medmine/medmine/client/chat"
	"medmine/medmine/client/conversation"
	"medmine/medmine/client/ingest"
	"medmine/medmine/client/workspace"
	"medmine/medmine/config"
	"medmine/medmine/utils/color"
	"medmine/medmine/utils/logging"

	"go.uber.org/zap"
)

type repl struct {
	ctx context.Context
	ws  *workspace.Workspace
	in  io.Reader
	out io.Writer
	now func() time.Time
}

func newREPL(ctx context.Context, cfg config.ClientConfig, in io.Reader, out io.Writer) *repl {
	r := &repl{ctx: ctx, in: in, out: out, now: time.Now}
	r.ws = workspace.New(workspace.Options{
		Config: cfg,
		Logger: logging.AppLogger,
		OnLoading: func(v bool) {
			if v {
				fmt.Fprintln(out, color.ColorDim("Earl is thinking..."))
			}
		},
	})
	return r
}

// Run reads commands until EOF, exit or ctx is done.
func (r *repl) Run() error {
	unsubscribe := r.ws.Store.Subscribe(r.onEvent)
	defer unsubscribe()

	fmt.Fprintln(r.out, color.ColorPrompt("MedMine"), color.ColorDim("session "+r.ws.SessionID()))
	for _, m := range r.ws.Store.Messages() {
		renderMessage(r.out, m)
	}
	fmt.Fprintln(r.out, color.ColorDim("Type a question, /help for commands or exit to quit."))

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(r.out, color.ColorPrompt("medmine> "))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if r.ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}
		if line == "" {
			continue
		}
		r.handle(line)
	}
}

func (r *repl) onEvent(ev conversation.Event) {
	switch ev.Kind {
	case conversation.EventAppended, conversation.EventReplaced:
		// the user already sees what they typed
		if ev.Message.Role == conversation.RoleUser {
			return
		}
		renderMessage(r.out, ev.Message)
	case conversation.EventReset:
		fmt.Fprintln(r.out, color.ColorDim("New chat started."))
		for _, m := range r.ws.Store.Messages() {
			renderMessage(r.out, m)
		}
	case conversation.EventLoaded:
		fmt.Fprintln(r.out, color.ColorDim(fmt.Sprintf("Loaded %d messages.", ev.Len)))
		for _, m := range r.ws.Store.Messages() {
			renderMessage(r.out, m)
		}
	}
}

func (r *repl) handle(line string) {
	if !strings.HasPrefix(line, "/") {
		r.send(line)
		return
	}
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	ctx := r.ctx

	switch cmd {
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/upload":
		if len(args) == 0 {
			r.warn("Usage: /upload <path>")
			return
		}
		path := strings.Join(args, " ")
		if _, err := r.ws.Ingest.UploadFile(ctx, path); err != nil {
			r.report(err)
			return
		}
		renderPage(r.out, r.ws.Ingest.State(), previewRows)
	case "/preview":
		n := previewRows
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				r.warn("Usage: /preview [n]")
				return
			}
			n = v
		}
		renderPage(r.out, r.ws.Ingest.State(), n)
	case "/page":
		st := r.ws.Ingest.State()
		if st.Batch == nil {
			r.report(ingest.ErrNoBatch)
			return
		}
		if len(args) == 0 {
			r.warn("Usage: /page <offset> [limit]")
			return
		}
		offset, err := strconv.Atoi(args[0])
		if err != nil {
			r.warn("Usage: /page <offset> [limit]")
			return
		}
		limit := st.Limit
		if len(args) > 1 {
			if limit, err = strconv.Atoi(args[1]); err != nil {
				r.warn("Usage: /page <offset> [limit]")
				return
			}
		}
		if _, err := r.ws.Ingest.FetchPage(ctx, st.Batch.ID, offset, limit); err != nil {
			r.report(err)
			return
		}
		renderPage(r.out, r.ws.Ingest.State(), previewRows)
	case "/refresh":
		if _, err := r.ws.Ingest.Refresh(ctx); err != nil {
			r.report(err)
			return
		}
		renderPage(r.out, r.ws.Ingest.State(), previewRows)
	case "/batch":
		b, err := r.ws.Ingest.RefreshBatch(ctx)
		if err != nil {
			r.report(err)
			return
		}
		fmt.Fprintln(r.out, color.ColorInfo(fmt.Sprintf("Batch %s is %s with %d records.", b.ID, b.Status, b.TotalRows)))
	case "/wait":
		fmt.Fprintln(r.out, color.ColorDim("Waiting for the batch... press Ctrl+C to stop."))
		if _, err := r.ws.Ingest.AwaitBatch(ctx); err != nil {
			r.report(err)
			return
		}
		renderPage(r.out, r.ws.Ingest.State(), previewRows)
	case "/suggest":
		printSuggestions(r.out, r.ws.Suggestions())
	case "/ask":
		suggestions := r.ws.Suggestions()
		n := 0
		if len(args) > 0 {
			n, _ = strconv.Atoi(args[0])
		}
		if n < 1 || n > len(suggestions) {
			r.warn(fmt.Sprintf("Usage: /ask <1-%d>", len(suggestions)))
			return
		}
		fmt.Fprintf(r.out, "%s %s\n", color.ColorUser("You:"), suggestions[n-1])
		r.send(suggestions[n-1])
	case "/history":
		// failures are already in the conversation
		chats, err := r.ws.History(ctx)
		if err == nil {
			printChats(r.out, chats)
		}
	case "/resume":
		if len(args) != 1 {
			r.warn("Usage: /resume <chat id>")
			return
		}
		if err := r.ws.Resume(ctx, args[0]); err == nil && r.ws.Ingest.State().Batch != nil {
			renderPage(r.out, r.ws.Ingest.State(), previewRows)
		}
	case "/new":
		r.ws.NewChat()
	case "/export":
		path := workspace.ExportFileName(r.now())
		if len(args) > 0 {
			path = strings.Join(args, " ")
		}
		if err := r.export(path); err != nil {
			r.report(err)
			return
		}
		fmt.Fprintln(r.out, color.ColorInfo("Conversation saved to "+path))
	default:
		r.warn(fmt.Sprintf("Unknown command %s. Type /help for the list.", cmd))
	}
}

func (r *repl) send(text string) {
	if _, err := r.ws.Chat.Send(r.ctx, text); err != nil {
		r.report(err)
	}
}

func (r *repl) export(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.ws.Export(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// report prints errors the conversation does not already show.
func (r *repl) report(err error) {
	var ie *ingest.IngestError
	var ue *ingest.UnsupportedFileTypeError
	var ce *chat.ChatError
	switch {
	case errors.As(err, &ie), errors.As(err, &ue), errors.As(err, &ce),
		errors.Is(err, ingest.ErrStale), errors.Is(err, chat.ErrStale):
		logging.AppLogger.Debug("reported in conversation", zap.Error(err))
	case errors.Is(err, ingest.ErrNoBatch):
		r.warn("No data loaded. Upload a file with /upload <path>.")
	case errors.Is(err, chat.ErrSendInProgress):
		r.warn("Earl is still answering the previous message.")
	default:
		fmt.Fprintln(r.out, color.ColorError("Error: "+err.Error()))
	}
}

func (r *repl) warn(msg string) {
	fmt.Fprintln(r.out, color.ColorWarning(msg))
}
