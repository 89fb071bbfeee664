package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/secure"
	"github.com/burrowlabs/burrow/pkg/wire"
)

// inboxClient is the slice of the broker client the poll loop needs; tests
// substitute a fake.
type inboxClient interface {
	Pull(ctx context.Context, max int) ([]wire.InboxMessage, error)
	Ack(ctx context.Context, messageIDs []string) error
}

// clawSender delivers one message to the local automation process.
type clawSender interface {
	Send(message string) error
}

var errPoison = errors.New("bridge: poison message")

// heartbeatEvery bounds how long the bridge can sit idle without a log line.
const heartbeatEvery = 5 * time.Minute

// backoffCeiling caps the poll retry interval after repeated broker errors.
const backoffCeiling = 60 * time.Second

// clawEvent is the line handed to the automation process for an actionable
// platform event.
type clawEvent struct {
	ThreadID string `json:"thread_id"`
	Channel  string `json:"channel"`
	User     string `json:"user,omitempty"`
	Text     string `json:"text"`
}

// platformEvent is the decrypted envelope payload: the platform's outer
// callback with the inner event we route on.
type platformEvent struct {
	Type  string `json:"type"`
	Event struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		User     string `json:"user"`
		Channel  string `json:"channel"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
	} `json:"event"`
}

// Poller drives the pull-mode loop: lease, verify, decrypt, dedup, forward,
// ack. It is the single writer for the dedup cache and thread registry.
type Poller struct {
	client  inboxClient
	claw    clawSender
	dedup   *DedupCache
	threads *ThreadRegistry
	keys    *secure.KeySet

	brokerSignPub []byte
	workspaceID   string
	interval      time.Duration
	maxPull       int
	maxAge        time.Duration

	now func() time.Time
}

func NewPoller(client inboxClient, claw clawSender, dedup *DedupCache, threads *ThreadRegistry,
	keys *secure.KeySet, brokerSignPub []byte, workspaceID string,
	interval time.Duration, maxPull int, maxAge time.Duration) *Poller {
	return &Poller{
		client:        client,
		claw:          claw,
		dedup:         dedup,
		threads:       threads,
		keys:          keys,
		brokerSignPub: brokerSignPub,
		workspaceID:   workspaceID,
		interval:      interval,
		maxPull:       maxPull,
		maxAge:        maxAge,
		now:           time.Now,
	}
}

// Run polls until ctx is done. Broker errors back off exponentially from the
// poll interval up to a ceiling; any successful poll resets the pace. A
// heartbeat line fires periodically even when nothing arrives.
func (p *Poller) Run(ctx context.Context) {
	wait := p.interval
	lastBeat := p.now()

	for {
		select {
		case <-ctx.Done():
			logger.InfoC("bridge", "poll loop stopped")
			return
		case <-time.After(wait):
		}

		n, err := p.PollOnce(ctx)
		if err != nil {
			wait = nextBackoff(wait)
			logger.WarnCF("bridge", "poll failed", map[string]interface{}{
				"error":      err.Error(),
				"retry_in_s": int(wait.Seconds()),
			})
			continue
		}
		wait = p.interval

		if n == 0 && p.now().Sub(lastBeat) >= heartbeatEvery {
			logger.InfoCF("bridge", "idle heartbeat", map[string]interface{}{
				"workspace_id": p.workspaceID,
			})
			lastBeat = p.now()
		} else if n > 0 {
			lastBeat = p.now()
		}
	}
}

// PollOnce runs a single lease/process/ack pass and reports how many
// messages it leased. Only a broker-level failure is an error; per-message
// failures are classified and handled inside the pass.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	messages, err := p.client.Pull(ctx, p.maxPull)
	if err != nil {
		return 0, err
	}

	var acks []string
	for _, msg := range messages {
		switch err := p.process(msg); {
		case err == nil:
			p.dedup.Record(msg.MessageID)
			acks = append(acks, msg.MessageID)
		case errors.Is(err, errPoison):
			// Acked anyway so one bad message cannot wedge the inbox.
			logger.WarnCF("bridge", "poison message acked", map[string]interface{}{
				"message_id": msg.MessageID,
				"error":      err.Error(),
			})
			acks = append(acks, msg.MessageID)
		default:
			// Left un-acked; the broker redelivers on a later lease.
			logger.ErrorCF("bridge", "message processing failed", map[string]interface{}{
				"message_id": msg.MessageID,
				"error":      err.Error(),
			})
		}
	}

	if len(acks) > 0 {
		if err := p.client.Ack(ctx, acks); err != nil {
			return len(messages), fmt.Errorf("ack batch: %w", err)
		}
	}
	p.dedup.Sweep()
	return len(messages), nil
}

// process handles one leased message. nil means delivered (or safely
// dropped); errPoison means never retry; anything else means leave un-acked.
func (p *Poller) process(msg wire.InboxMessage) error {
	canonical := secure.CanonicalEnvelope(msg.WorkspaceID, msg.Encrypted, msg.Timestamp)
	verified := secure.Verify(canonical, msg.Signature, p.brokerSignPub)

	if p.dedup.Seen(msg.MessageID) {
		// Duplicate delivery: collect for ack without reprocessing. A
		// duplicate that no longer verifies is poison, which acks too.
		if !verified {
			return fmt.Errorf("%w: duplicate with bad signature", errPoison)
		}
		logger.DebugCF("bridge", "duplicate suppressed", map[string]interface{}{
			"message_id": msg.MessageID,
		})
		return nil
	}

	if !verified {
		return fmt.Errorf("%w: envelope signature rejected", errPoison)
	}
	if msg.WorkspaceID != p.workspaceID {
		return fmt.Errorf("%w: envelope for workspace %s", errPoison, msg.WorkspaceID)
	}
	if p.maxAge > 0 {
		age := p.now().Sub(time.Unix(msg.Timestamp, 0))
		if age > p.maxAge {
			return fmt.Errorf("%w: envelope older than %s", errPoison, p.maxAge)
		}
	}

	ciphertext, err := base64.StdEncoding.DecodeString(msg.Encrypted)
	if err != nil {
		return fmt.Errorf("%w: ciphertext not base64", errPoison)
	}
	plaintext, err := secure.SealedDecrypt(ciphertext, p.keys.BoxPublic, p.keys.BoxPrivate)
	if err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}

	var event platformEvent
	if err := json.Unmarshal(plaintext, &event); err != nil {
		return fmt.Errorf("%w: event not json", errPoison)
	}
	if event.Type != "event_callback" || !actionableEvent(event.Event.Type) {
		// Acknowledged and dropped.
		logger.DebugCF("bridge", "event dropped", map[string]interface{}{
			"outer_type": event.Type,
			"event_type": event.Event.Type,
		})
		return nil
	}

	threadTS := event.Event.ThreadTS
	if threadTS == "" {
		threadTS = event.Event.TS
	}
	threadID := p.threads.GetOrCreate(event.Event.Channel, threadTS)

	line, err := json.Marshal(&clawEvent{
		ThreadID: threadID,
		Channel:  event.Event.Channel,
		User:     event.Event.User,
		Text:     event.Event.Text,
	})
	if err != nil {
		return fmt.Errorf("encode claw event: %w", err)
	}
	if err := p.claw.Send(string(line)); err != nil {
		return fmt.Errorf("forward to automation process: %w", err)
	}
	return nil
}

// nextBackoff doubles the retry interval up to the ceiling.
func nextBackoff(wait time.Duration) time.Duration {
	wait *= 2
	if wait > backoffCeiling {
		wait = backoffCeiling
	}
	return wait
}

func actionableEvent(eventType string) bool {
	switch eventType {
	case "app_mention", "message":
		return true
	}
	return false
}
