package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "cfmmcdl/pkg/errors"
	"cfmmcdl/pkg/logger"
)

const (
	testPassword = "goodpw"
	testVericode = "1234"
)

// fakePortal mimics the portal's token-continuity behavior: every response
// carries a fresh token and every POST must echo the previous one.
type fakePortal struct {
	mu        sync.Mutex
	seq       int
	current   string
	loggedIn  bool
	tradeDate string
	byType    string
}

func (p *fakePortal) nextToken() string {
	p.seq++
	p.current = fmt.Sprintf("tok-%d", p.seq)
	return p.current
}

func (p *fakePortal) tokenPage() string {
	return fmt.Sprintf(`<html><body><form>
<input type="hidden" name="%s" value="%s"/>
</form></body></html>`, tokenField, p.nextToken())
}

func (p *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /login.do", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintf(w, `<html><body><form action="/login.do" method="post">
<input type="hidden" name="%s" value="%s"/>
<img src="/veriCode.do"/>
</form></body></html>`, tokenField, p.nextToken())
	})

	mux.HandleFunc("GET /veriCode.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("captcha-image-bytes"))
	})

	mux.HandleFunc("POST /login.do", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		r.ParseForm()

		if r.PostFormValue(tokenField) != p.current {
			fmt.Fprint(w, `<html><body>invalid token</body></html>`)
			return
		}
		if r.PostFormValue("vericode") != testVericode {
			fmt.Fprint(w, `<html><body>`+captchaRejectedMarker+`</body></html>`)
			return
		}
		if r.PostFormValue("password") != testPassword {
			fmt.Fprint(w, `<html><body>`+badCredentialsMarker+`</body></html>`)
			return
		}
		p.loggedIn = true
		fmt.Fprint(w, p.tokenPage())
	})

	mux.HandleFunc("POST /customer/setParameter.do", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		r.ParseForm()

		if !p.loggedIn || r.PostFormValue(tokenField) != p.current {
			fmt.Fprint(w, `<html><body>invalid token</body></html>`)
			return
		}
		p.tradeDate = r.PostFormValue("tradeDate")
		p.byType = r.PostFormValue("byType")
		fmt.Fprint(w, p.tokenPage())
	})

	mux.HandleFunc("GET "+dailyExportPath, func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintf(w, "xls-daily:%s:%s", p.tradeDate, p.byType)
	})

	mux.HandleFunc("GET "+monthlyExportPath, func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintf(w, "xls-monthly:%s:%s", p.tradeDate, p.byType)
	})

	mux.HandleFunc("POST /logout.do", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.loggedIn = false
		fmt.Fprint(w, `<html><body>bye</body></html>`)
	})

	return mux
}

func newTestClient(t *testing.T) (*Client, *fakePortal, *httptest.Server) {
	t.Helper()
	p := &fakePortal{}
	srv := httptest.NewServer(p.handler())
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "00012345", testPassword, WithLogger(logger.Nop()))
	require.NoError(t, err)
	return c, p, srv
}

func login(t *testing.T, c *Client) {
	t.Helper()
	ch, err := c.BeginLogin(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.AttemptLogin(context.Background(), ch.Token, testVericode))
}

func TestNewClientRequiresAccount(t *testing.T) {
	_, err := NewClient("http://example.com", "", "pw")
	assert.Error(t, err)
}

func TestBeginLoginReturnsChallenge(t *testing.T) {
	c, _, _ := newTestClient(t)

	ch, err := c.BeginLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", ch.Token)
	assert.Equal(t, []byte("captcha-image-bytes"), ch.Image)
	assert.False(t, c.Authenticated())
}

func TestLoginHandshake(t *testing.T) {
	c, _, _ := newTestClient(t)
	login(t, c)
	assert.True(t, c.Authenticated())
}

func TestAttemptLoginCaptchaRejected(t *testing.T) {
	c, _, _ := newTestClient(t)

	ch, err := c.BeginLogin(context.Background())
	require.NoError(t, err)

	err = c.AttemptLogin(context.Background(), ch.Token, "wrong")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindCaptchaRejected))
	assert.False(t, c.Authenticated())

	// A fresh challenge with the right answer recovers.
	login(t, c)
	assert.True(t, c.Authenticated())
}

func TestAttemptLoginBadCredentials(t *testing.T) {
	p := &fakePortal{}
	srv := httptest.NewServer(p.handler())
	defer srv.Close()

	c, err := NewClient(srv.URL, "00012345", "wrong-password", WithLogger(logger.Nop()))
	require.NoError(t, err)

	ch, err := c.BeginLogin(context.Background())
	require.NoError(t, err)

	err = c.AttemptLogin(context.Background(), ch.Token, testVericode)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInvalidCredentials))
}

func TestAttemptLoginStaleToken(t *testing.T) {
	c, _, _ := newTestClient(t)

	ch, err := c.BeginLogin(context.Background())
	require.NoError(t, err)

	// A second BeginLogin rotates the portal-side token; the first
	// challenge's token is now stale.
	_, err = c.BeginLogin(context.Background())
	require.NoError(t, err)

	err = c.AttemptLogin(context.Background(), ch.Token, testVericode)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindPortalUnavailable))
}

func TestTokenContinuityAcrossSelections(t *testing.T) {
	c, p, _ := newTestClient(t)
	login(t, c)

	// Two selections in a row: each POST must carry the token the previous
	// response issued, or the fake portal rejects it.
	require.NoError(t, c.SelectParameters(context.Background(), "2024-01-03", QueryByDay))
	assert.Equal(t, "2024-01-03", p.tradeDate)
	assert.Equal(t, "day", p.byType)

	data, err := c.ExportDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "xls-daily:2024-01-03:day", string(data))

	require.NoError(t, c.SelectParameters(context.Background(), "2024-01", QueryByTrade))
	data, err = c.ExportMonthly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "xls-monthly:2024-01:trade", string(data))
}

func TestSelectParametersRequiresAuth(t *testing.T) {
	c, _, _ := newTestClient(t)
	err := c.SelectParameters(context.Background(), "2024-01-03", QueryByDay)
	assert.Error(t, err)
}

func TestExportRequiresAuth(t *testing.T) {
	c, _, _ := newTestClient(t)
	_, err := c.ExportDaily(context.Background())
	assert.Error(t, err)
}

func TestLogoutIdempotent(t *testing.T) {
	c, p, _ := newTestClient(t)

	// Unauthenticated logout is a no-op.
	require.NoError(t, c.Logout(context.Background()))

	login(t, c)
	require.NoError(t, c.Logout(context.Background()))
	assert.False(t, c.Authenticated())
	assert.False(t, p.loggedIn)

	// Second logout after the first is also a no-op.
	require.NoError(t, c.Logout(context.Background()))
}

func TestBeginLoginPortalDown(t *testing.T) {
	p := &fakePortal{}
	srv := httptest.NewServer(p.handler())
	c, err := NewClient(srv.URL, "00012345", testPassword, WithLogger(logger.Nop()))
	require.NoError(t, err)
	srv.Close()

	_, err = c.BeginLogin(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindPortalUnavailable))
}
