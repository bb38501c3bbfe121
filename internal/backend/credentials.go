package backend

import (
	"context"
	"net/http"
)

// CSRFHeader is the header the booking backend reads its CSRF token from.
const CSRFHeader = "X-CSRFToken"

// Credentials is the ambient authentication context a turn rides on. It is
// supplied by the caller and forwarded untouched.
type Credentials struct {
	Cookie    string
	CSRFToken string
}

type credentialsKey struct{}

// WithCredentials attaches credentials to ctx.
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFromContext returns the credentials attached to ctx, if any.
func CredentialsFromContext(ctx context.Context) (Credentials, bool) {
	creds, ok := ctx.Value(credentialsKey{}).(Credentials)
	return creds, ok
}

// CredentialsFromRequest captures the cookie and CSRF headers of an inbound request.
func CredentialsFromRequest(r *http.Request) Credentials {
	return Credentials{
		Cookie:    r.Header.Get("Cookie"),
		CSRFToken: r.Header.Get(CSRFHeader),
	}
}

func (c Credentials) apply(req *http.Request) {
	if c.Cookie != "" {
		req.Header.Set("Cookie", c.Cookie)
	}
	if c.CSRFToken != "" {
		req.Header.Set(CSRFHeader, c.CSRFToken)
	}
}
