package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/secure"
	"github.com/burrowlabs/burrow/pkg/wire"
)

// platformAPI is the slice of slack-go the direct path uses; tests
// substitute a fake.
type platformAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
}

// newPlatformAPI is swapped out in tests.
var newPlatformAPI = func(token string) platformAPI {
	return slack.New(token)
}

// Outbound dispatches replies from the automation process. With a locally
// held bot token it calls the platform API directly; otherwise it seals the
// action body for the broker and relays through /send.
type Outbound struct {
	direct       platformAPI
	broker       *BrokerClient
	keys         *secure.KeySet
	brokerBoxPub [secure.BoxKeySize]byte
}

// NewOutbound builds a dispatcher. botToken empty means broker mode.
func NewOutbound(botToken string, broker *BrokerClient, keys *secure.KeySet, brokerBoxPub [secure.BoxKeySize]byte) *Outbound {
	o := &Outbound{
		broker:       broker,
		keys:         keys,
		brokerBoxPub: brokerBoxPub,
	}
	if botToken != "" {
		o.direct = newPlatformAPI(botToken)
		logger.InfoC("bridge", "outbound in direct mode")
	} else {
		logger.InfoC("bridge", "outbound in broker mode")
	}
	return o
}

// SendMessage posts text to a channel, threaded when threadTS is set.
func (o *Outbound) SendMessage(ctx context.Context, channel, text, threadTS string) error {
	if o.direct != nil {
		opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
		if threadTS != "" {
			opts = append(opts, slack.MsgOptionTS(threadTS))
		}
		if _, _, err := o.direct.PostMessageContext(ctx, channel, opts...); err != nil {
			return fmt.Errorf("bridge: post message: %w", err)
		}
		return nil
	}

	routing := wire.Routing{Channel: channel, ThreadTS: threadTS}
	return o.relay(ctx, wire.ActionPostMessage, routing, wire.ActionBody{Text: text})
}

// React adds an emoji reaction to a message.
func (o *Outbound) React(ctx context.Context, channel, messageTS, emoji string) error {
	if o.direct != nil {
		ref := slack.NewRefToMessage(channel, messageTS)
		if err := o.direct.AddReactionContext(ctx, emoji, ref); err != nil {
			return fmt.Errorf("bridge: add reaction: %w", err)
		}
		return nil
	}

	routing := wire.Routing{Channel: channel, MessageTS: messageTS}
	return o.relay(ctx, wire.ActionAddReaction, routing, wire.ActionBody{Emoji: emoji})
}

// relay seals the action body in an authenticated box and hands the signed
// request to the broker client.
func (o *Outbound) relay(ctx context.Context, action string, routing wire.Routing, body wire.ActionBody) error {
	plaintext, err := json.Marshal(&body)
	if err != nil {
		return fmt.Errorf("bridge: encode action body: %w", err)
	}
	ciphertext, nonce, err := secure.AuthBoxEncrypt(plaintext, o.brokerBoxPub, o.keys.BoxPrivate)
	if err != nil {
		return fmt.Errorf("bridge: seal action body: %w", err)
	}
	routingJSON, err := json.Marshal(&routing)
	if err != nil {
		return fmt.Errorf("bridge: encode routing: %w", err)
	}
	return o.broker.Send(ctx, action, string(routingJSON),
		base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(nonce))
}
