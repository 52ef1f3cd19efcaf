package services

import (
	"context"
	"iter"

	"github/itish2003/ainotes/models"

	"github.com/sirupsen/logrus"
)

// ChatAnswer is a prepared answer: the notes used as context and the lazy
// response stream. Retrieval has already succeeded when an answer exists.
type ChatAnswer struct {
	Notes  []models.Note
	Stream iter.Seq2[[]byte, error]
}

// ChatService answers a conversation from the caller's own notes.
type ChatService struct {
	retriever  *ContextRetriever
	streamer   *CompletionStreamer
	windowSize int
	topK       int
	log        *logrus.Entry
}

func NewChatService(retriever *ContextRetriever, streamer *CompletionStreamer, windowSize, topK int) *ChatService {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &ChatService{
		retriever:  retriever,
		streamer:   streamer,
		windowSize: windowSize,
		topK:       topK,
		log:        logrus.WithField("component", "chat"),
	}
}

// Answer truncates the conversation once, retrieves context for that window
// and hands the same window to the streamer. Failures before streaming are
// returned directly; nothing is retried here.
func (s *ChatService) Answer(ctx context.Context, conversation []models.ChatMessage, ownerID string) (*ChatAnswer, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	if len(conversation) == 0 {
		return nil, invalidField("messages", "min")
	}

	window := TruncateConversation(conversation, s.windowSize)

	retrieved, err := s.retriever.Retrieve(ctx, window, ownerID, s.topK)
	if err != nil {
		s.log.WithError(err).WithField("owner_id", ownerID).Error("CHAT: Retrieval failed")
		return nil, err
	}
	s.log.WithField("owner_id", ownerID).Infof("CHAT: Answering with %d notes from a window of %d messages", len(retrieved.Notes), len(window))

	return &ChatAnswer{
		Notes:  retrieved.Notes,
		Stream: s.streamer.Stream(ctx, BuildSystemPrompt(retrieved.Notes), window),
	}, nil
}
