package scope

import "context"

// Type names a kind of scope, such as a request, that code can look up from
// a context without knowing who created it.
type Type struct {
	name string
}

// Request is the scope type installed by the HTTP request middleware.
var Request = NewType("request")

// NewType returns a new scope type. Types are compared by identity.
func NewType(name string) *Type {
	return &Type{name: name}
}

func (t *Type) String() string { return "ScopeType[" + t.name + "]" }

// NewContext creates a scope of this type labelled with a random UUID and
// returns a context carrying it. The caller should Close the scope when the
// work ends.
func (t *Type) NewContext(ctx context.Context) (context.Context, *Scope) {
	s := Create("")
	return t.WithScope(ctx, s), s
}

// WithScope returns a context carrying s as the current scope of this type.
func (t *Type) WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, t, s)
}

// Current returns the scope of this type carried by ctx, or nil.
func (t *Type) Current(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(t).(*Scope)
	return s
}

type scopeKey struct{}

// WithScope returns a context carrying s as the untyped current scope.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the untyped scope carried by ctx, or nil.
func FromContext(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}
