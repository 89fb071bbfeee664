package bridge

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/burrowlabs/burrow/pkg/secure"
)

func newLocalAPIFixture(t *testing.T) (*LocalAPI, *fakePlatform, *ThreadRegistry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := &fakePlatform{}
	orig := newPlatformAPI
	newPlatformAPI = func(token string) platformAPI { return fake }
	t.Cleanup(func() { newPlatformAPI = orig })

	keys, err := secure.GenerateKeySet()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	threads := NewThreadRegistry(100)
	outbound := NewOutbound("xoxb-local", nil, keys, keys.BoxPublic)
	return NewLocalAPI(outbound, threads, 1000, 1000), fake, threads
}

func localPost(api *LocalAPI, path, body, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	return w
}

func TestLocalAPIRejectsNonLoopback(t *testing.T) {
	api, fake, _ := newLocalAPIFixture(t)
	w := localPost(api, "/send", `{"channel":"C1","text":"hi"}`, "192.0.2.10:4000")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if len(fake.posted) != 0 {
		t.Fatal("non-loopback request reached the platform")
	}
}

func TestLocalAPISend(t *testing.T) {
	api, fake, _ := newLocalAPIFixture(t)
	w := localPost(api, "/send", `{"channel":"C1","text":"hi"}`, "127.0.0.1:4000")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(fake.posted) != 1 || fake.posted[0] != "C1" {
		t.Fatalf("posted = %v", fake.posted)
	}
}

func TestLocalAPISendValidation(t *testing.T) {
	api, fake, _ := newLocalAPIFixture(t)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing channel", `{"text":"hi"}`, "channel"},
		{"missing text", `{"channel":"C1"}`, "text"},
		{"bad thread ts", `{"channel":"C1","text":"hi","thread_ts":"nope"}`, "thread_ts"},
	}
	for _, tc := range cases {
		w := localPost(api, "/send", tc.body, "127.0.0.1:4000")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tc.name, w.Code)
		}
		if !strings.Contains(w.Body.String(), tc.want) {
			t.Fatalf("%s: body %s does not name field %s", tc.name, w.Body.String(), tc.want)
		}
	}
	if len(fake.posted) != 0 {
		t.Fatal("invalid request reached the platform")
	}
}

func TestLocalAPIReplyResolvesThread(t *testing.T) {
	api, fake, threads := newLocalAPIFixture(t)
	id := threads.GetOrCreate("C7", "100.1")

	w := localPost(api, "/reply", `{"thread_id":"`+id+`","text":"answer"}`, "127.0.0.1:4000")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(fake.posted) != 1 || fake.posted[0] != "C7" {
		t.Fatalf("posted = %v, want reply into C7", fake.posted)
	}

	w = localPost(api, "/reply", `{"thread_id":"unknown","text":"answer"}`, "127.0.0.1:4000")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown thread: status = %d, want 404", w.Code)
	}
}

func TestLocalAPIReact(t *testing.T) {
	api, fake, _ := newLocalAPIFixture(t)
	w := localPost(api, "/react", `{"channel":"C1","timestamp":"100.1","emoji":"eyes"}`, "127.0.0.1:4000")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(fake.reactions) != 1 || fake.reactions[0] != "eyes" {
		t.Fatalf("reactions = %v", fake.reactions)
	}

	w = localPost(api, "/react", `{"channel":"C1","timestamp":"100.1","emoji":"NOT VALID"}`, "127.0.0.1:4000")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad emoji: status = %d, want 400", w.Code)
	}
}

func TestLocalAPIRateLimit(t *testing.T) {
	api, _, _ := newLocalAPIFixture(t)
	api.limiter.SetBurst(2)
	api.limiter.SetLimit(0)

	for i := 0; i < 2; i++ {
		if w := localPost(api, "/send", `{"channel":"C1","text":"hi"}`, "127.0.0.1:4000"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	w := localPost(api, "/send", `{"channel":"C1","text":"hi"}`, "127.0.0.1:4000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
}
