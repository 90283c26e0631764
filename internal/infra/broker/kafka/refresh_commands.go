package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/IBM/sarama"

	"pricewatch/internal/app/refresh"
	"pricewatch/internal/domain/searches"
)

const ActionRefresh = "refresh"

var ErrUnknownAction = errors.New("kafka: unknown command action")

// Refresher starts background refreshes.
type Refresher interface {
	Trigger(ctx context.Context, id searches.SearchID) (*refresh.Run, error)
}

// Inbox remembers handled message ids. Seen only reads; Mark records.
type Inbox interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	Mark(ctx context.Context, messageID string) error
}

type refreshCommand struct {
	ID       string `json:"id"`
	SearchID string `json:"search_id"`
	Action   string `json:"action"`
}

// RefreshCommandHandler turns {"search_id": "...", "action": "refresh"} messages
// into refresh triggers. Unknown searches and refreshes already running are
// acknowledged and dropped.
type RefreshCommandHandler struct {
	Refresher Refresher
	Inbox     Inbox
	Logger    *slog.Logger
}

func (h RefreshCommandHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var cmd refreshCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		h.log().Warn("dropping malformed refresh command", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	if cmd.SearchID == "" && len(msg.Key) > 0 {
		cmd.SearchID = string(msg.Key)
	}
	action := strings.ToLower(strings.TrimSpace(cmd.Action))
	if action == "" {
		action = ActionRefresh
	}
	if action != ActionRefresh || cmd.SearchID == "" {
		h.log().Warn("dropping refresh command", "action", cmd.Action, "search_id", cmd.SearchID, "error", ErrUnknownAction)
		return nil
	}

	id := messageID(msg, cmd)
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, id)
		if err != nil {
			return fmt.Errorf("inbox: %w", err)
		}
		if seen {
			h.log().Debug("duplicate refresh command", "search_id", cmd.SearchID, "message_id", id)
			return nil
		}
	}

	_, err := h.Refresher.Trigger(ctx, searches.SearchID(cmd.SearchID))
	switch {
	case err == nil:
		h.log().Info("refresh triggered from broker", "search_id", cmd.SearchID)
	case errors.Is(err, searches.ErrNotFound), errors.Is(err, refresh.ErrInProgress):
		h.log().Info("refresh command skipped", "search_id", cmd.SearchID, "reason", err.Error())
	default:
		// Not marked, so the redelivery is tried again.
		return err
	}
	h.mark(ctx, id)
	return nil
}

// mark failures are logged only; a redelivery then hits ErrInProgress or starts a fresh run.
func (h RefreshCommandHandler) mark(ctx context.Context, id string) {
	if h.Inbox == nil {
		return
	}
	if err := h.Inbox.Mark(ctx, id); err != nil {
		h.log().Warn("inbox mark failed", "message_id", id, "error", err)
	}
}

func (h RefreshCommandHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// messageID prefers an explicit id (payload or ce_id header) and falls back to the log position.
func messageID(msg *sarama.ConsumerMessage, cmd refreshCommand) string {
	if cmd.ID != "" {
		return cmd.ID
	}
	for _, h := range msg.Headers {
		if h != nil && (string(h.Key) == "ce_id" || string(h.Key) == "id") && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return msg.Topic + "/" + strconv.Itoa(int(msg.Partition)) + "/" + strconv.FormatInt(msg.Offset, 10)
}
