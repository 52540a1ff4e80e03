package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"medmine/medmine/client/chat"
	"medmine/medmine/client/conversation"
	"medmine/medmine/client/ingest"
	"medmine/medmine/client/workspace"
	"medmine/medmine/utils/color"
	"medmine/medmine/utils/types"
)

const previewRows = 5

func renderMessage(out io.Writer, m conversation.Message) {
	switch m.Role {
	case conversation.RoleUser:
		fmt.Fprintf(out, "%s %s\n", color.ColorUser(workspace.Sender(m.Role)+":"), m.Text)
	case conversation.RoleAssistant:
		text := m.Text
		if strings.HasPrefix(text, chat.ErrorPrefix) {
			text = color.ColorError(text)
		}
		fmt.Fprintf(out, "%s %s\n", color.ColorAssistant(workspace.Sender(m.Role)+":"), text)
		for _, s := range m.Suggestions {
			fmt.Fprintf(out, "  %s\n", color.ColorSuggestion("→ "+s))
		}
	default:
		if strings.HasPrefix(m.Text, "Error") || strings.HasPrefix(m.Text, "Failed") || strings.HasPrefix(m.Text, "Unsupported") {
			fmt.Fprintln(out, color.ColorError(m.Text))
			return
		}
		fmt.Fprintln(out, color.ColorInfo(m.Text))
	}
}

// renderPage prints up to n rows of the held page as a table.
func renderPage(out io.Writer, st ingest.State, n int) {
	if st.Batch == nil {
		fmt.Fprintln(out, color.ColorWarning("No data loaded. Upload a file with /upload <path>."))
		return
	}
	fmt.Fprintln(out, color.ColorDim(fmt.Sprintf("batch %s · %s · %d records · rows %d-%d",
		st.Batch.ID, st.Batch.Status, st.Batch.TotalRows, st.Offset+1, st.Offset+len(st.Page))))
	if len(st.Page) == 0 {
		fmt.Fprintln(out, color.ColorDim("(no rows yet)"))
		return
	}
	headers := pageHeaders(st)
	if n <= 0 || n > len(st.Page) {
		n = len(st.Page)
	}
	rows := make([][]string, 0, n)
	for _, r := range st.Page[:n] {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = r[h]
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(out, color.Table(headers, rows))
}

func pageHeaders(st ingest.State) []string {
	if len(st.Batch.Columns) > 0 {
		return append([]string{"id"}, st.Batch.Columns...)
	}
	headers := make([]string, 0, len(st.Page[0]))
	for k := range st.Page[0] {
		if k != "id" {
			headers = append(headers, k)
		}
	}
	sort.Strings(headers)
	return append([]string{"id"}, headers...)
}

func printChats(out io.Writer, chats []types.ChatSummary) {
	if len(chats) == 0 {
		fmt.Fprintln(out, color.ColorDim("No saved chats yet."))
		return
	}
	rows := make([][]string, 0, len(chats))
	for _, c := range chats {
		rows = append(rows, []string{c.ID, c.Title, c.CreatedAt.Local().Format("2006-01-02 15:04"), fmt.Sprint(c.MessageCount)})
	}
	fmt.Fprintln(out, color.Table([]string{"id", "title", "created", "messages"}, rows))
}

func printSuggestions(out io.Writer, suggestions []string) {
	for i, s := range suggestions {
		fmt.Fprintf(out, "  %s %s\n", color.ColorPrompt(fmt.Sprintf("%d.", i+1)), s)
	}
	fmt.Fprintln(out, color.ColorDim("Send one with /ask <n>."))
}

const helpText = `Commands:
  /upload <path>          upload a .csv, .xlsx or .xls file
  /preview [n]            show the first n rows of the loaded page
  /page <offset> [limit]  load another page of the batch
  /refresh                reload the current page
  /batch                  show the batch status
  /wait                   wait until a background batch is stored
  /suggest                list suggested questions
  /ask <n>                send suggestion n
  /history                list saved chats
  /resume <chat id>       continue a saved chat
  /new                    start a new chat
  /export [path]          save the conversation as text
  /help                   show this help
  exit                    quit`
