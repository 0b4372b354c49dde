package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pipegrid.ai/internal/observerproto"
	"pipegrid.ai/internal/sim/catalogs"
	"pipegrid.ai/internal/sim/world"
)

func startWorld(t *testing.T) *world.World {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "obs", Topology: "cardinal", TickRateHz: 20, DT: 1}, cats, nil)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	if _, err := w.RegisterStructure(world.StructureSpec{ID: "tank-1", Def: "TANK", Pos: [2]int{0, 0}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	return w
}

func TestBootstrapHandler(t *testing.T) {
	w := startWorld(t)
	s := NewServer(w, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/observer/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rr := httptest.NewRecorder()
	s.BootstrapHandler()(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var resp observerproto.BootstrapResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.WorldID != "obs" || resp.WorldParams.Topology != "cardinal" || resp.WorldParams.TickRateHz != 20 {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.CatalogDigest != w.Catalogs().Digest() || len(resp.Resources) == 0 || len(resp.NetworkDefs) == 0 {
		t.Fatalf("resp=%+v", resp)
	}
	for i := 1; i < len(resp.NetworkDefs); i++ {
		if resp.NetworkDefs[i-1] > resp.NetworkDefs[i] {
			t.Fatalf("network defs not sorted: %v", resp.NetworkDefs)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/observer/bootstrap", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rr = httptest.NewRecorder()
	s.BootstrapHandler()(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/observer/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rr = httptest.NewRecorder()
	s.BootstrapHandler()(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("post status=%d", rr.Code)
	}
}

func TestWSHandler_StreamsTicks(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).WSHandler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: "1.0.0", EveryTicks: 1, WithEdges: true}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg observerproto.TickMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read tick: %v", err)
	}
	if msg.Type != "TICK" || msg.Digest == "" || len(msg.Networks) != 1 {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestWSHandler_RejectsIncompatibleVersion(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).WSHandler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: "2.0.0"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err=%v want policy violation close", err)
	}
}

func TestNormalizeSubscribe(t *testing.T) {
	sub := observerproto.SubscribeMsg{EveryTicks: 10_000, Networks: []string{"N000002", " N000001", "N000002", ""}}
	normalizeSubscribe(&sub)
	if sub.EveryTicks != maxEveryTicks {
		t.Fatalf("every=%d", sub.EveryTicks)
	}
	if len(sub.Networks) != 2 || sub.Networks[0] != "N000001" || sub.Networks[1] != "N000002" {
		t.Fatalf("networks=%v", sub.Networks)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:80":     true,
		"10.0.0.1:80":  false,
		"garbage":      false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
