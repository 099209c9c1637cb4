// ABOUTME: Debug transcript page rendering a conversation as HTML
// ABOUTME: Agent replies are markdown, rendered server-side with goldmark

package gateway

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/filazero/chat-relay/internal/store"
)

var transcriptTmpl = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<title>Conversa {{.Conversation.ID}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.meta { color: #666; font-size: 0.85rem; margin-bottom: 1.5rem; }
.msg { margin: 0.75rem 0; padding: 0.5rem 0.75rem; border-radius: 0.5rem; }
.msg.user { background: #e8f0fe; }
.msg.agent { background: #f1f3f4; }
.msg.system { background: #fef7e0; font-style: italic; }
.sender { font-size: 0.75rem; color: #555; margin-bottom: 0.25rem; }
</style>
</head>
<body>
<h1>Conversa</h1>
<div class="meta">
id {{.Conversation.ID}} · usuário {{.Conversation.UserID}} · status {{.Conversation.Status}}
</div>
{{range .Messages}}
<div class="msg {{.SenderClass}}">
<div class="sender">{{.SenderID}} · {{.CreatedAt}}</div>
<div>{{.Body}}</div>
</div>
{{else}}
<p>Nenhuma mensagem ainda.</p>
{{end}}
</body>
</html>
`))

// transcriptMessage is one rendered message in the transcript template
type transcriptMessage struct {
	SenderID    string
	SenderClass string
	CreatedAt   string
	Body        template.HTML
}

// markdown renders agent replies; user text stays escaped plain text
var markdown = goldmark.New(
	goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
)

// handleTranscript handles GET /debug/conversations/{id} requests.
func (g *Gateway) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/debug/conversations/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	conv, err := g.store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}

	msgs, err := g.store.ListMessages(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}

	rendered := make([]transcriptMessage, 0, len(msgs))
	for _, msg := range msgs {
		rendered = append(rendered, transcriptMessage{
			SenderID:    msg.SenderID,
			SenderClass: senderClass(msg.SenderType),
			CreatedAt:   msg.CreatedAt.Format("2006-01-02 15:04:05"),
			Body:        renderBody(msg),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = transcriptTmpl.Execute(w, struct {
		Conversation *store.Conversation
		Messages     []transcriptMessage
	}{conv, rendered})
}

func senderClass(senderType string) string {
	switch senderType {
	case store.SenderAgent:
		return "agent"
	case store.SenderSystem:
		return "system"
	default:
		return "user"
	}
}

// renderBody converts agent markdown to HTML. User and system content is
// escaped verbatim so markup in user input never executes.
func renderBody(msg *store.Message) template.HTML {
	if msg.SenderType != store.SenderAgent {
		return template.HTML(template.HTMLEscapeString(msg.Content))
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(msg.Content), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(msg.Content))
	}
	return template.HTML(buf.String())
}
