package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/burrowlabs/burrow/pkg/inbox"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/secure"
	"github.com/burrowlabs/burrow/pkg/wire"
)

type countingTransport struct {
	calls atomic.Int64
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return nil, errors.New("no network in this test")
}

func activeRecord(url, pubKey string) *registry.Record {
	return &registry.Record{
		WorkspaceID:  "T1",
		Status:       registry.StatusActive,
		ServerURL:    url,
		ServerPubKey: pubKey,
	}
}

func TestForwardRefusesWithoutNetworkCall(t *testing.T) {
	brokerKeys, _ := secure.GenerateKeySet()
	serverKeys, _ := secure.GenerateKeySet()
	serverPub := secure.EncodeKey(serverKeys.BoxPublic[:])

	transport := &countingTransport{}
	f := NewForwarder(brokerKeys, inbox.NewMemoryQueue(0))
	f.client = &http.Client{Transport: transport}

	cases := []struct {
		name string
		ws   *registry.Record
		want error
	}{
		{"inactive", &registry.Record{WorkspaceID: "T1", Status: registry.StatusPending, ServerURL: "https://x", ServerPubKey: serverPub}, ErrWorkspaceNotActive},
		{"no url", &registry.Record{WorkspaceID: "T1", Status: registry.StatusActive, ServerPubKey: serverPub}, ErrMissingServerConf},
		{"no key", activeRecord("https://x", ""), ErrMissingServerConf},
	}
	for _, tc := range cases {
		ok, status, err := f.Forward(context.Background(), []byte("{}"), tc.ws)
		if ok || status != 0 {
			t.Fatalf("%s: forward = (%v, %d), want local failure", tc.name, ok, status)
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
	if transport.calls.Load() != 0 {
		t.Fatalf("%d network calls issued for local-failure cases", transport.calls.Load())
	}
}

func TestForwardPullModeQueues(t *testing.T) {
	brokerKeys, _ := secure.GenerateKeySet()
	serverKeys, _ := secure.GenerateKeySet()
	queue := inbox.NewMemoryQueue(0)
	f := NewForwarder(brokerKeys, queue)

	ws := activeRecord(PullModeURL, secure.EncodeKey(serverKeys.BoxPublic[:]))
	ok, _, err := f.Forward(context.Background(), []byte(`{"type":"event_callback"}`), ws)
	if !ok || err != nil {
		t.Fatalf("forward = (%v, %v)", ok, err)
	}

	messages, _ := queue.Lease(context.Background(), "T1", 10)
	if len(messages) != 1 {
		t.Fatalf("queued %d messages, want 1", len(messages))
	}
	if messages[0].MessageID == "" {
		t.Fatal("queued message has no id")
	}
}

func TestForwardPushDeliversSignedEnvelope(t *testing.T) {
	brokerKeys, _ := secure.GenerateKeySet()
	serverKeys, _ := secure.GenerateKeySet()
	event := []byte(`{"type":"event_callback","event":{"type":"app_mention","text":"hi","channel":"C1","ts":"100.1"}}`)

	var received wire.Envelope
	var headerSig, headerTS string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headerSig = r.Header.Get("X-Burrow-Signature")
		headerTS = r.Header.Get("X-Burrow-Timestamp")
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	f := NewForwarder(brokerKeys, inbox.NewMemoryQueue(0))
	ws := activeRecord(ts.URL, secure.EncodeKey(serverKeys.BoxPublic[:]))
	ok, status, err := f.Forward(context.Background(), event, ws)
	if !ok || err != nil {
		t.Fatalf("forward = (%v, %d, %v)", ok, status, err)
	}

	// The server side of the end-to-end scenario: verify, then decrypt.
	canonical := secure.CanonicalEnvelope(received.WorkspaceID, received.Encrypted, received.Timestamp)
	if !secure.Verify(canonical, received.Signature, brokerKeys.SignPublic) {
		t.Fatal("envelope signature does not verify against broker signing key")
	}
	if headerSig != received.Signature || headerTS == "" {
		t.Fatal("signature/timestamp headers missing or inconsistent with body")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(received.Encrypted)
	if err != nil {
		t.Fatalf("decode ciphertext: %v", err)
	}
	plaintext, err := secure.SealedDecrypt(ciphertext, serverKeys.BoxPublic, serverKeys.BoxPrivate)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}

	var payload struct {
		Event struct {
			Text string `json:"text"`
		} `json:"event"`
	}
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		t.Fatalf("unmarshal recovered event: %v", err)
	}
	if payload.Event.Text != "hi" {
		t.Fatalf("recovered text = %q, want hi", payload.Event.Text)
	}
}

func TestForwardPushNon2xxIsFailure(t *testing.T) {
	brokerKeys, _ := secure.GenerateKeySet()
	serverKeys, _ := secure.GenerateKeySet()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	f := NewForwarder(brokerKeys, inbox.NewMemoryQueue(0))
	ws := activeRecord(ts.URL, secure.EncodeKey(serverKeys.BoxPublic[:]))
	ok, status, err := f.Forward(context.Background(), []byte("{}"), ws)
	if ok || err == nil {
		t.Fatal("non-2xx response reported as success")
	}
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", status)
	}
}
