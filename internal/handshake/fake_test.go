// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package handshake_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ooi3/ooi/internal/handshake"
)

// fakeDMM emulates the DMM login flow, the world-assignment endpoint and the
// signing gadget. Every browser session is tracked by cookie so tests can
// detect cross-talk between concurrent handshakes.
type fakeDMM struct {
	srv *httptest.Server

	mu        sync.Mutex
	nextSID   int
	loggedIn  map[string]string // sid -> login id
	passwords map[string]string // login id -> password
	owners    map[string]string // login id -> owner id
	reset     map[string]bool   // login ids forced to reset their password

	loginPage   string // overrides the generated login page when set
	loginDelay  time.Duration
	ajaxDelay   time.Duration
	worldResult int
	worldID     int
	gadgetRC    int
	apiResult   int
	apiToken    string
	startTime   int64

	loginCalls  atomic.Int32
	worldCalls  atomic.Int32
	gadgetCalls atomic.Int32

	worldReferer atomic.Value
	gadgetForm   atomic.Value
}

func newFakeDMM(t *testing.T) *fakeDMM {
	t.Helper()
	f := &fakeDMM{
		loggedIn:    map[string]string{},
		passwords:   map[string]string{"alice@example.com": "alicepw", "bob@example.com": "bobpw"},
		owners:      map[string]string{"alice@example.com": "1001", "bob@example.com": "2002"},
		reset:       map[string]bool{},
		worldResult: 1,
		worldID:     5,
		gadgetRC:    200,
		apiResult:   1,
		apiToken:    "T",
		startTime:   123,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /my/-/login/", f.handleLogin)
	mux.HandleFunc("POST /my/-/login/ajax-get-token/", f.handleAjax)
	mux.HandleFunc("POST /my/-/login/auth/", f.handleAuth)
	mux.HandleFunc("GET /netgame/social/-/gadgets/", f.handleGame)
	mux.HandleFunc("GET /kcsapi/api_world/get_id/{owner}/1/{ts}", f.handleWorld)
	mux.HandleFunc("POST /gadgets/makeRequest", f.handleMakeRequest)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDMM) endpoints() handshake.Endpoints {
	ep := handshake.DefaultEndpoints()
	ep.Login = f.srv.URL + "/my/-/login/"
	ep.Ajax = f.srv.URL + "/my/-/login/ajax-get-token/"
	ep.Auth = f.srv.URL + "/my/-/login/auth/"
	ep.Game = f.srv.URL + "/netgame/social/-/gadgets/=/app_id=854854/"
	ep.MakeRequest = f.srv.URL + "/gadgets/makeRequest"
	ep.World = f.srv.URL + "/kcsapi/api_world/get_id/%s/1/%d"
	ep.Origin = f.srv.URL
	return ep
}

func (f *fakeDMM) client(timeouts handshake.Timeouts) *handshake.Client {
	return handshake.NewClient(handshake.Config{
		Transport: &http.Transport{},
		Endpoints: f.endpoints(),
		Timeouts:  timeouts,
	})
}

func (f *fakeDMM) sid(r *http.Request) string {
	c, err := r.Cookie("sid")
	if err != nil {
		return ""
	}
	return c.Value
}

func wait(r *http.Request, d time.Duration) bool {
	if d == 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}

func (f *fakeDMM) handleLogin(w http.ResponseWriter, r *http.Request) {
	f.loginCalls.Add(1)
	if !wait(r, f.loginDelay) {
		return
	}

	f.mu.Lock()
	f.nextSID++
	sid := strconv.Itoa(f.nextSID)
	page := f.loginPage
	f.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "sid", Value: sid, Path: "/"})
	if page == "" {
		page = fmt.Sprintf(`<script>
DMM.netgame.reloadCSRF("DMM_TOKEN", "dmm%s");
var params = {
	"token": "tok%s",
};
</script>`, sid, sid)
	}
	_, _ = w.Write([]byte(page))
}

func (f *fakeDMM) handleAjax(w http.ResponseWriter, r *http.Request) {
	if !wait(r, f.ajaxDelay) {
		return
	}
	sid := f.sid(r)
	if sid == "" ||
		r.Header.Get("DMM_TOKEN") != "dmm"+sid ||
		r.Header.Get("X-Requested-With") != "XMLHttpRequest" ||
		r.Header.Get("Referer") == "" ||
		r.PostFormValue("token") != "tok"+sid {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("<html>bad request</html>"))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"token":    "auth" + sid,
		"login_id": "id_" + sid,
		"password": "pw_" + sid,
	})
}

func (f *fakeDMM) handleAuth(w http.ResponseWriter, r *http.Request) {
	sid := f.sid(r)
	login := r.PostFormValue("login_id")
	password := r.PostFormValue("password")

	ok := sid != "" &&
		r.Header.Get("DMM_TOKEN") == "" &&
		r.Header.Get("X-Requested-With") == "" &&
		r.PostFormValue("token") == "auth"+sid &&
		r.PostFormValue("id_"+sid) == login &&
		r.PostFormValue("pw_"+sid) == password

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reset[login] {
		_, _ = w.Write([]byte("<h1>認証エラー</h1>"))
		return
	}
	if ok && f.passwords[login] == password {
		f.loggedIn[sid] = login
	}
	_, _ = w.Write([]byte("<html>mypage</html>"))
}

func (f *fakeDMM) handleGame(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	login, ok := f.loggedIn[f.sid(r)]
	owner := f.owners[login]
	f.mu.Unlock()

	if !ok {
		_, _ = w.Write([]byte("<html>please log in</html>"))
		return
	}
	fmt.Fprintf(w, `<script>
var gadgetInfo = {
	VIEWER_ID : %s,
	URL : "http://osapi.dmm.com/gadgets/ifr?synd=dmm&container=dmm&owner=%s&viewer=%s&aid=854854&st=st%s",
	OWNER_ID  : %s
};
</script>`, owner, owner, owner, f.sid(r), owner)
}

func (f *fakeDMM) handleWorld(w http.ResponseWriter, r *http.Request) {
	f.worldCalls.Add(1)
	f.worldReferer.Store(r.Header.Get("Referer"))
	fmt.Fprintf(w, `svdata={"api_result":%d,"api_result_msg":"ok","api_data":{"api_world_id":%d}}`,
		f.worldResult, f.worldID)
}

func (f *fakeDMM) handleMakeRequest(w http.ResponseWriter, r *http.Request) {
	f.gadgetCalls.Add(1)
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.gadgetForm.Store(r.PostForm)

	inner := fmt.Sprintf(`svdata={"api_result":%d,"api_token":%q,"api_starttime":%d}`,
		f.apiResult, f.apiToken, f.startTime)
	payload, _ := json.Marshal(map[string]any{
		r.PostFormValue("url"): map[string]any{
			"rc":      f.gadgetRC,
			"body":    inner,
			"headers": map[string]string{},
		},
	})
	_, _ = w.Write([]byte("throw 1; < don't be evil' >"))
	_, _ = w.Write(payload)
}
