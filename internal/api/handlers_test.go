package api

import (
	"encoding/json"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harrylevesque/callform/internal/calls"
	"github.com/harrylevesque/callform/internal/form"
	"github.com/harrylevesque/callform/internal/models"
	"github.com/harrylevesque/callform/internal/notify"
	"github.com/harrylevesque/callform/internal/utils"
)

type upstream struct {
	mu     sync.Mutex
	status int
	bodies []string
	hold   chan struct{}
	seen   chan struct{}
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	u.mu.Lock()
	u.bodies = append(u.bodies, string(b))
	u.mu.Unlock()
	if u.seen != nil {
		u.seen <- struct{}{}
	}
	if u.hold != nil {
		<-u.hold
	}
	w.WriteHeader(u.status)
}

func (u *upstream) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.bodies)
}

type testEnv struct {
	server   *httptest.Server
	upstream *upstream
}

func newTestEnv(t *testing.T, up *upstream) *testEnv {
	t.Helper()
	calledSrv := httptest.NewServer(up)
	t.Cleanup(calledSrv.Close)

	client, err := calls.NewClient(calledSrv.URL + "/api/v1/calls")
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	logger := utils.NewWriterLogger(io.Discard)
	queue := notify.NewMemoryQueue()
	store, err := NewSessionStore("test-secret")
	if err != nil {
		t.Fatalf("NewSessionStore() failed: %v", err)
	}
	s, err := NewServer(Options{
		Forms:        form.NewRegistry(client, queue, logger),
		Queue:        queue,
		Sessions:     store,
		Logger:       logger,
		PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	srv := httptest.NewServer(NewRouter(s))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, upstream: up}
}

// browser returns a client with its own cookie jar that does not follow redirects.
func browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, c *http.Client, u string) (int, string) {
	t.Helper()
	resp, err := c.Get(u)
	if err != nil {
		t.Fatalf("GET %s: %v", u, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, html.UnescapeString(string(b))
}

func submit(t *testing.T, c *http.Client, base, phone string) (int, string) {
	t.Helper()
	resp, err := c.PostForm(base+"/calls", url.Values{"phone": {phone}})
	if err != nil {
		t.Fatalf("POST /calls: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, html.UnescapeString(string(b))
}

func pendingNotifications(t *testing.T, c *http.Client, base string) []models.Notification {
	t.Helper()
	resp, err := c.Get(base + "/notifications")
	if err != nil {
		t.Fatalf("GET /notifications: %v", err)
	}
	defer resp.Body.Close()
	var out []models.Notification
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	return out
}

func TestSubmitSuccessFlow(t *testing.T) {
	env := newTestEnv(t, &upstream{status: http.StatusOK})
	c := browser(t)
	base := env.server.URL

	if status, body := get(t, c, base+"/"); status != http.StatusOK || !strings.Contains(body, `type="tel"`) {
		t.Fatalf("GET / = %d %q", status, body)
	}

	status, _ := submit(t, c, base, "+7 (999) 123-45-67")
	if status != http.StatusSeeOther {
		t.Fatalf("POST /calls status = %d, want 303", status)
	}
	if env.upstream.count() != 1 || env.upstream.bodies[0] != `{"phone":"+7 (999) 123-45-67"}` {
		t.Fatalf("upstream bodies = %q", env.upstream.bodies)
	}

	_, body := get(t, c, base+"/")
	if !strings.Contains(body, "Number sent!") {
		t.Fatalf("page lacks success message: %q", body)
	}
	if strings.Contains(body, `<button type="submit" disabled>`) {
		t.Fatal("submit button disabled after the request settled")
	}
	if !strings.Contains(body, `value="+7 (999) 123-45-67"`) {
		t.Fatalf("phone was not kept in the input: %q", body)
	}
	if strings.Contains(body, "Error while sending!") || strings.Contains(body, "Connection error!") {
		t.Fatalf("page shows an error notification: %q", body)
	}

	pending := pendingNotifications(t, c, base)
	if len(pending) != 1 || pending[0].Kind != models.KindSuccess {
		t.Fatalf("pending = %+v", pending)
	}

	resp, err := c.Post(base+"/notifications/"+pending[0].ID+"/ack", "", nil)
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("ack status = %d", resp.StatusCode)
	}
	if pending := pendingNotifications(t, c, base); len(pending) != 0 {
		t.Fatalf("pending after ack = %+v", pending)
	}
}

func TestSubmitServerRejected(t *testing.T) {
	env := newTestEnv(t, &upstream{status: http.StatusInternalServerError})
	c := browser(t)

	if status, _ := submit(t, c, env.server.URL, "123"); status != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", status)
	}
	pending := pendingNotifications(t, c, env.server.URL)
	if len(pending) != 1 || pending[0].Message != "Error while sending!" {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestSubmitEmptyPhone(t *testing.T) {
	env := newTestEnv(t, &upstream{status: http.StatusOK})
	c := browser(t)

	status, body := submit(t, c, env.server.URL, "")
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if !strings.Contains(body, msgPhoneRequired) {
		t.Fatalf("body lacks required message: %q", body)
	}
	if env.upstream.count() != 0 {
		t.Fatalf("upstream got %d requests, want 0", env.upstream.count())
	}
	if pending := pendingNotifications(t, c, env.server.URL); len(pending) != 0 {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestSubmitWhileInFlight(t *testing.T) {
	up := &upstream{status: http.StatusOK, hold: make(chan struct{}), seen: make(chan struct{}, 2)}
	env := newTestEnv(t, up)
	c := browser(t)
	base := env.server.URL
	get(t, c, base+"/")

	first := make(chan int, 1)
	go func() {
		resp, err := c.PostForm(base+"/calls", url.Values{"phone": {"123"}})
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	select {
	case <-up.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached upstream")
	}
	if _, body := get(t, c, base+"/"); !strings.Contains(body, `<button type="submit" disabled>`) {
		t.Fatalf("submit button not disabled while in flight: %q", body)
	}
	if status, _ := submit(t, c, base, "123"); status != http.StatusConflict {
		t.Fatalf("second submit status = %d, want 409", status)
	}

	close(up.hold)
	if status := <-first; status != http.StatusSeeOther {
		t.Fatalf("first submit status = %d, want 303", status)
	}
	if up.count() != 1 {
		t.Fatalf("upstream got %d requests, want 1", up.count())
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t, &upstream{status: http.StatusOK})
	alice, bob := browser(t), browser(t)

	submit(t, alice, env.server.URL, "111")
	if pending := pendingNotifications(t, bob, env.server.URL); len(pending) != 0 {
		t.Fatalf("bob sees %d notifications", len(pending))
	}
	if _, body := get(t, bob, env.server.URL+"/"); strings.Contains(body, `value="111"`) {
		t.Fatal("bob sees alice's phone")
	}
	if pending := pendingNotifications(t, alice, env.server.URL); len(pending) != 1 {
		t.Fatalf("alice sees %d notifications", len(pending))
	}
}

func TestAckUnknownNotification(t *testing.T) {
	env := newTestEnv(t, &upstream{status: http.StatusOK})
	c := browser(t)
	get(t, c, env.server.URL+"/")

	resp, err := c.Post(env.server.URL+"/notifications/does-not-exist/ack", "", nil)
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestNotificationsWebsocket(t *testing.T) {
	env := newTestEnv(t, &upstream{status: http.StatusOK})
	c := browser(t)
	base := env.server.URL
	submit(t, c, base, "123")

	dialer := websocket.Dialer{Jar: c.Jar, HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(base, "http")+"/notifications/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg feedMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msg.Notifications) != 1 || msg.Notifications[0].Message != "Number sent!" {
		t.Fatalf("feed = %+v", msg)
	}

	if err := conn.WriteJSON(ackMessage{Ack: msg.Notifications[0].ID}); err != nil {
		t.Fatalf("write ack: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read after ack: %v", err)
	}
	if len(msg.Notifications) != 0 {
		t.Fatalf("feed after ack = %+v", msg)
	}
}

func TestNotificationsWebsocketNeedsSession(t *testing.T) {
	env := newTestEnv(t, &upstream{status: http.StatusOK})
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.server.URL, "http")+"/notifications/ws", nil)
	if err == nil {
		t.Fatal("dial without session succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &upstream{status: http.StatusOK})
	status, body := get(t, http.DefaultClient, env.server.URL+"/health")
	if status != http.StatusOK || strings.TrimSpace(body) != "OK" {
		t.Fatalf("health = %d %q", status, body)
	}
}

func TestNotificationsWebsocketRejectsOversizedMessage(t *testing.T) {
	env := newTestEnv(t, &upstream{status: http.StatusOK})
	c := browser(t)
	base := env.server.URL
	get(t, c, base+"/")

	dialer := websocket.Dialer{Jar: c.Jar, HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(base, "http")+"/notifications/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg feedMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	big := `{"ack": "` + strings.Repeat("x", 2*maxMessageSize) + `"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(big)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&msg); err == nil {
		t.Fatalf("connection stayed open after an oversized message, got %+v", msg)
	}
}
