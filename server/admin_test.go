package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"posrelay/protocol"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAdminPlayersAndMetrics(t *testing.T) {
	h, _ := newTestHub(t, DefaultConfig())
	b := connect(h, "B")
	b.send(h, protocol.Join{Pos: pos(50, 60)})
	a := connect(h, "A")
	a.send(h, protocol.Join{Pos: pos(10, 20)})
	r := NewAdminRouter(h, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/players", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var players []PlayerView
	if err := json.Unmarshal(w.Body.Bytes(), &players); err != nil {
		t.Fatal(err)
	}
	if len(players) != 2 || players[0] != (PlayerView{ID: "A", X: 10, Y: 20}) || players[1].ID != "B" {
		t.Fatalf("players %+v", players)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var body struct {
		Sessions int              `json:"sessions"`
		Metrics  map[string]int64 `json:"metrics"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Sessions != 2 || body.Metrics["joins"] != 2 {
		t.Fatalf("metrics %+v", body)
	}
}

func TestAdminConfigTogglesEcho(t *testing.T) {
	h, _ := newTestHub(t, DefaultConfig())
	r := NewAdminRouter(h, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(`{"echoToSender":true}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !h.EchoToSender() {
		t.Fatalf("status %d echo=%v", w.Code, h.EchoToSender())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/config", nil))
	if !strings.Contains(w.Body.String(), `"echoToSender":true`) {
		t.Fatalf("body %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(`{`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid json status %d", w.Code)
	}
}

func TestAdminHealthz(t *testing.T) {
	h, _ := newTestHub(t, DefaultConfig())
	w := httptest.NewRecorder()
	NewAdminRouter(h, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("%d %q", w.Code, w.Body.String())
	}
}
