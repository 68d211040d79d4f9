package esi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"eve_bot/internal/model"
)

// routeTransport serves canned JSON bodies by request path and counts
// the requests it sees.
type routeTransport struct {
	routes map[string]string
	calls  map[string]int
}

func newRouteTransport(routes map[string]string) *routeTransport {
	return &routeTransport{routes: routes, calls: make(map[string]int)}
}

func (rt *routeTransport) Do(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	rt.calls[path]++
	body, ok := rt.routes[path]
	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(bytes.NewBufferString(`{"error":"not found"}`)),
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}, nil
}

func newTestClient(routes map[string]string) (*Client, *routeTransport) {
	rt := newRouteTransport(routes)
	c := New(rt)
	c.SetBaseURL("https://esi.test/latest")
	return c, rt
}

func TestKillmailDetail(t *testing.T) {
	c, _ := newTestClient(map[string]string{
		"/latest/killmails/123/abc/": `{
			"killmail_id": 123,
			"killmail_time": "2025-06-01T12:00:00Z",
			"solar_system_id": 30002187,
			"victim": {"ship_type_id": 670, "character_id": 90000001, "corporation_id": 98000001},
			"attackers": [
				{"character_id": 90000002, "ship_type_id": 17738, "final_blow": false},
				{"character_id": 90000003, "ship_type_id": 11567, "final_blow": true}
			]
		}`,
	})

	km, err := c.KillmailDetail(context.Background(), 123, "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff(int64(123), km.KillmailID); diff != "" {
		t.Errorf("killmail id mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(30002187), km.SolarSystemID); diff != "" {
		t.Errorf("system id mismatch (-want +got):\n%s", diff)
	}

	fb, ok := km.FinalBlow()
	if !ok {
		t.Fatal("expected a final blow attacker")
	}
	if diff := cmp.Diff(int64(90000003), fb.CharacterID); diff != "" {
		t.Errorf("final blow character mismatch (-want +got):\n%s", diff)
	}
}

func TestKillmailDetailNotFound(t *testing.T) {
	c, _ := newTestClient(nil)

	_, err := c.KillmailDetail(context.Background(), 999, "nope")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegionID(t *testing.T) {
	c, _ := newTestClient(map[string]string{
		"/latest/universe/systems/30002187/":        `{"constellation_id": 20000322}`,
		"/latest/universe/constellations/20000322/": `{"region_id": 10000025}`,
	})

	got, err := c.RegionID(context.Background(), 30002187)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(int64(10000025), got); diff != "" {
		t.Errorf("region id mismatch (-want +got):\n%s", diff)
	}
}

func TestNameCaches(t *testing.T) {
	c, rt := newTestClient(map[string]string{
		"/latest/universe/types/670/": `{"name": "Capsule"}`,
	})

	for i := 0; i < 3; i++ {
		name, err := c.Name(context.Background(), CategoryType, 670)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff("Capsule", name); diff != "" {
			t.Errorf("name mismatch (-want +got):\n%s", diff)
		}
	}

	if diff := cmp.Diff(1, rt.calls["/latest/universe/types/670/"]); diff != "" {
		t.Errorf("request count mismatch (-want +got):\n%s", diff)
	}
}

func TestNameCategoryURLs(t *testing.T) {
	routes := map[string]string{
		"/latest/characters/90000001/":    `{"name": "Pilot One"}`,
		"/latest/corporations/98000001/":  `{"name": "Test Corp"}`,
		"/latest/alliances/99000001/":     `{"name": "Test Alliance"}`,
		"/latest/universe/systems/30001/": `{"name": "Jita"}`,
		"/latest/universe/regions/10000/": `{"name": "The Forge"}`,
	}
	c, _ := newTestClient(routes)

	tests := []struct {
		category Category
		id       int64
		want     string
	}{
		{CategoryCharacter, 90000001, "Pilot One"},
		{CategoryCorporation, 98000001, "Test Corp"},
		{CategoryAlliance, 99000001, "Test Alliance"},
		{CategorySystem, 30001, "Jita"},
		{CategoryRegion, 10000, "The Forge"},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			got, err := c.Name(context.Background(), tt.category, tt.id)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("name mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestServerStatus(t *testing.T) {
	c, _ := newTestClient(map[string]string{
		"/latest/status/": `{"players": 24513, "server_version": "2769104", "start_time": "2025-06-01T11:02:00Z"}`,
	})

	st, err := c.ServerStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(24513, st.Players); diff != "" {
		t.Errorf("player count mismatch (-want +got):\n%s", diff)
	}
}
