package notify

import (
	"context"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"

	"campus-ledger/utils"
)

// PubNubConfig carries the keys for the notification channel set.
type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	UserID       string
}

// PubNubNotifier publishes a message on each debited member's channel plus
// the manager's channel after a settlement commits. Publishes run behind a
// circuit breaker so a broken notification backend cannot slow settlements
// down for long.
type PubNubNotifier struct {
	pn      *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewPubNubNotifier(cfg PubNubConfig) *PubNubNotifier {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey

	return &PubNubNotifier{
		pn:      pubnub.NewPubNub(pnCfg),
		breaker: utils.NewCircuitBreaker("pubnub-notify"),
	}
}

func (n *PubNubNotifier) SettlementCompleted(ctx context.Context, s Settlement) {
	for userID, amount := range s.Amounts {
		n.publish(ctx, "user-"+userID, map[string]any{
			"type":        "event_settled",
			"event_id":    s.EventID,
			"description": s.Description,
			"strategy":    s.Strategy,
			"amount":      amount.StringFixed(2),
		})
	}
	n.publish(ctx, "user-"+s.ManagerID, map[string]any{
		"type":        "event_settled",
		"event_id":    s.EventID,
		"description": s.Description,
		"strategy":    s.Strategy,
		"total":       s.Total.StringFixed(2),
	})
}

func (n *PubNubNotifier) publish(ctx context.Context, channel string, message map[string]any) {
	err := n.breaker.Execute(ctx, func() error {
		_, _, err := n.pn.Publish().
			Channel(channel).
			Message(message).
			Execute()
		return err
	})
	if err != nil {
		slog.Error("settlement notification failed", "channel", channel, "error", err)
	}
}
