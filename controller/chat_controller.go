package controller

import (
	"context"
	"net/http"
	"strings"

	"github/itish2003/ainotes/models"
	"github/itish2003/ainotes/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const relevantNotesHeader = "X-Relevant-Notes"

// ChatAnswerer prepares a streamed answer for a conversation.
type ChatAnswerer interface {
	Answer(ctx context.Context, conversation []models.ChatMessage, ownerID string) (*services.ChatAnswer, error)
}

// ChatController handles POST /api/chat.
type ChatController struct {
	chat ChatAnswerer
	log  *logrus.Entry
}

func NewChatController(chat ChatAnswerer) *ChatController {
	return &ChatController{
		chat: chat,
		log:  logrus.WithField("component", "http"),
	}
}

// Chat streams the answer as plain text, flushing every fragment. Errors
// before the first byte get a JSON body; a failure after that drops the
// connection so the client sees an incomplete response.
func (cc *ChatController) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.NewValidationError(err))
		return
	}

	ownerID := OwnerID(c)
	answer, err := cc.chat.Answer(c.Request.Context(), req.Messages, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}

	ids := make([]string, 0, len(answer.Notes))
	for _, n := range answer.Notes {
		ids = append(ids, n.ID)
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header(relevantNotesHeader, strings.Join(ids, ","))
	c.Status(http.StatusOK)

	written := 0
	for frag, err := range answer.Stream {
		if err != nil {
			if !c.Writer.Written() {
				c.Writer.Header().Del("Content-Type")
				c.Writer.Header().Del(relevantNotesHeader)
				respondError(c, err)
				return
			}
			cc.log.WithError(err).WithField("owner_id", ownerID).
				Errorf("HTTP: Chat stream failed after %d bytes, aborting response", written)
			panic(http.ErrAbortHandler)
		}
		n, werr := c.Writer.Write(frag)
		written += n
		if werr != nil {
			cc.log.WithError(werr).WithField("owner_id", ownerID).Info("HTTP: Client went away during chat stream")
			return
		}
		c.Writer.Flush()
	}
}
