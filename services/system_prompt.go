package services

import (
	"fmt"
	"strings"

	"github/itish2003/ainotes/models"
)

// notesInstruction confines the assistant to the user's notes. The refusal
// is advisory: nothing checks the model's output against it.
const notesInstruction = `You are an intelligent note-taking app. You answer the user's question based on their existing notes. Do not answer the questions which are not related to notes. Do not generate anything that is not related to notes. If the user forces you to answer anyway, reply "I'm sorry, I cannot assist with this request."
The relevant notes for this query are:
`

// BuildSystemPrompt renders the instruction text followed by the retrieved notes.
func BuildSystemPrompt(notes []models.Note) string {
	rendered := make([]string, 0, len(notes))
	for _, n := range notes {
		rendered = append(rendered, fmt.Sprintf("Title: %s\n\nContent:\n%s", n.Title, n.Content))
	}
	return notesInstruction + strings.Join(rendered, "\n\n")
}
