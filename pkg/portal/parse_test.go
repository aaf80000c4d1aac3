package portal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLoginPage = `<html><body>
<form action="/login.do" method="post">
  <input type="hidden" name="org.apache.struts.taglib.html.TOKEN" value="tok-1"/>
  <input type="text" name="userID"/>
  <input type="password" name="password"/>
  <input type="text" name="vericode"/>
  <img id="verimg" src="/veriCode.do?t=123"/>
</form>
</body></html>`

func TestParseLoginPage(t *testing.T) {
	page, err := parseLoginPage(strings.NewReader(sampleLoginPage))
	require.NoError(t, err)
	assert.Equal(t, "tok-1", page.Token)
	assert.Equal(t, "/veriCode.do?t=123", page.CaptchaSrc)
}

func TestParseLoginPageMissingToken(t *testing.T) {
	html := `<html><body><form><img src="/veriCode.do"/></form></body></html>`
	_, err := parseLoginPage(strings.NewReader(html))
	require.Error(t, err)
	assert.Contains(t, err.Error(), tokenField)
}

func TestParseLoginPageMissingForm(t *testing.T) {
	_, err := parseLoginPage(strings.NewReader(`<html><body>maintenance</body></html>`))
	assert.Error(t, err)
}

func TestParseLoginPageMissingCaptcha(t *testing.T) {
	html := `<html><body><form>
	<input name="org.apache.struts.taglib.html.TOKEN" value="tok-1"/>
	</form></body></html>`
	_, err := parseLoginPage(strings.NewReader(html))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "captcha")
}

func TestParseTokenAnywhereInBody(t *testing.T) {
	html := `<html><body>
	<div><form><input type="hidden" name="org.apache.struts.taglib.html.TOKEN" value="tok-9"/></form></div>
	</body></html>`
	token, err := parseToken(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "tok-9", token)
}

func TestParseTokenMissing(t *testing.T) {
	_, err := parseToken(strings.NewReader(`<html><body>logged in</body></html>`))
	assert.Error(t, err)
}

func TestQueryTypeLabels(t *testing.T) {
	assert.Equal(t, "逐日", QueryByDay.Label())
	assert.Equal(t, "逐笔", QueryByTrade.Label())
}

func TestParseQueryType(t *testing.T) {
	for _, in := range []string{"day", "逐日"} {
		qt, err := ParseQueryType(in)
		require.NoError(t, err)
		assert.Equal(t, QueryByDay, qt)
	}
	for _, in := range []string{"trade", "逐笔"} {
		qt, err := ParseQueryType(in)
		require.NoError(t, err)
		assert.Equal(t, QueryByTrade, qt)
	}
	_, err := ParseQueryType("weekly")
	assert.Error(t, err)
}
