package portal

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// decodeBody converts a portal response to UTF-8. The portal serves GB-coded
// pages; charset.NewReader sniffs the Content-Type header and <meta> tags.
func decodeBody(r io.Reader, contentType string) (io.Reader, error) {
	decoded, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response charset: %w", err)
	}
	return decoded, nil
}

// loginPage holds what the login form exposes: the anti-forgery token and the
// CAPTCHA image location.
type loginPage struct {
	Token      string
	CaptchaSrc string
}

// parseLoginPage scrapes the token hidden field and the CAPTCHA <img src>
// from the login form.
func parseLoginPage(r io.Reader) (*loginPage, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse login page: %w", err)
	}

	form := findElement(doc, "form")
	if form == nil {
		return nil, fmt.Errorf("login page has no form")
	}

	page := &loginPage{}
	walk(form, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "input":
			if page.Token == "" && attr(n, "name") == tokenField {
				page.Token = attr(n, "value")
			}
		case "img":
			if page.CaptchaSrc == "" {
				page.CaptchaSrc = attr(n, "src")
			}
		}
	})

	if page.Token == "" {
		return nil, fmt.Errorf("login form carries no %s field", tokenField)
	}
	if page.CaptchaSrc == "" {
		return nil, fmt.Errorf("login form carries no captcha image")
	}
	return page, nil
}

// parseToken scrapes the rotated anti-forgery token out of an authenticated
// response body.
func parseToken(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse response page: %w", err)
	}

	var token string
	walk(doc, func(n *html.Node) {
		if token != "" || n.Type != html.ElementNode || n.Data != "input" {
			return
		}
		if attr(n, "name") == tokenField {
			token = attr(n, "value")
		}
	})

	if token == "" {
		return "", fmt.Errorf("response carries no %s field", tokenField)
	}
	return token, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}
