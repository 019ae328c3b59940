package auth

import "context"

// Session is the authenticated caller of a request.
type Session struct {
	UserID  string
	Email   string
	Name    string
	IsAdmin bool
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
