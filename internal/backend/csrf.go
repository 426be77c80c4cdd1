package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hospitaltm/citas-dashboard/pkg/dom"
)

// TokenSource yields the CSRF token for a write call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CookieToken reads the token from the browser cookies forwarded in ctx.
type CookieToken struct {
	Name string
}

// Token implements TokenSource.
func (c CookieToken) Token(ctx context.Context) (string, error) {
	for _, ck := range Cookies(ctx) {
		if ck.Name == c.Name {
			return ck.Value, nil
		}
	}
	return "", fmt.Errorf("cookie %q not present", c.Name)
}

// FormFieldToken reads the token from a hidden input of the page document.
type FormFieldToken struct {
	Doc   *dom.Document
	Field string
}

// Token implements TokenSource.
func (f FormFieldToken) Token(ctx context.Context) (string, error) {
	v, ok := f.Doc.Value(f.Field)
	if !ok || v == "" {
		return "", fmt.Errorf("form field %q not present", f.Field)
	}
	return v, nil
}

// StaticToken always returns itself. Used by the CLI.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

type cookiesKey struct{}

// WithCookies stores the browser's cookies so backend calls made on its behalf carry them.
func WithCookies(ctx context.Context, cookies []*http.Cookie) context.Context {
	return context.WithValue(ctx, cookiesKey{}, cookies)
}

// Cookies returns the cookies stored by WithCookies.
func Cookies(ctx context.Context) []*http.Cookie {
	cookies, _ := ctx.Value(cookiesKey{}).([]*http.Cookie)
	return cookies
}

func forwardCookies(ctx context.Context, req *http.Request) {
	for _, ck := range Cookies(ctx) {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
}
