package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/mindx/internal/agent"
	"github.com/ashureev/mindx/internal/agent/agenttest"
	"github.com/ashureev/mindx/internal/pods"
	"github.com/ashureev/mindx/internal/session"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestPodStreamDeliversMessageAndFlag(t *testing.T) {
	gw := &agenttest.Gateway{InvokeFunc: agenttest.Reply(agent.Verdict{"severity_level": "critical"})}
	env := newTestEnv(t, gw, envOptions{screen: session.ScreenPods})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/pods/1"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	for env.handler.streams.count("1") == 0 {
		if ctx.Err() != nil {
			t.Fatal("stream never registered")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := env.session.OpenPod("1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	msg, err := env.session.PostPodMessage("1", "rough day")
	if err != nil {
		t.Fatalf("PostMessage failed: %v", err)
	}

	var first, second pods.Event
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read message event: %v", err)
	}
	if first.Type != pods.EventMessage || first.Message.ID != msg.ID || first.Message.Flagged {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if err := wsjson.Read(ctx, conn, &second); err != nil {
		t.Fatalf("read flag event: %v", err)
	}
	if second.Type != pods.EventFlagged || second.Message.ID != msg.ID || !second.Message.Flagged {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestPodStreamUnknownPod(t *testing.T) {
	env := newTestEnv(t, &agenttest.Gateway{}, envOptions{})
	w := env.do(t, http.MethodGet, "/ws/pods/missing", "")
	expectStatus(t, w, http.StatusNotFound)
}
