package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
)

// Client はレスポンスの Set-Cookie を次のリクエストに引き継ぐテスト用クライアントです。
type Client struct {
	Handler http.Handler
	Cookies map[string]*http.Cookie
}

// NewClient は Cookie を持たない Client を作成します。
func NewClient(h http.Handler) *Client {
	return &Client{Handler: h, Cookies: map[string]*http.Cookie{}}
}

// Do はリクエストを送ります。form が nil でなければ URL エンコードしたフォームとして送ります。
func (cl *Client) Do(method, path string, form url.Values, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for _, c := range cl.Cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	cl.Handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(cl.Cookies, c.Name)
			continue
		}
		cl.Cookies[c.Name] = c
	}
	return rec
}

// Get は GET リクエストを送ります。
func (cl *Client) Get(path string) *httptest.ResponseRecorder {
	return cl.Do(http.MethodGet, path, nil, nil)
}

// PostForm はフォームを POST します。
func (cl *Client) PostForm(path string, form url.Values) *httptest.ResponseRecorder {
	return cl.Do(http.MethodPost, path, form, nil)
}
