// Package auth supplies bearer tokens to ragchat sessions.
// Token issuance belongs to the identity provider; this package only reads a
// token that already exists and hands it over as an opaque string. An empty
// token means "not authenticated" and is not an error.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TokenProvider returns the current bearer token, or "" when unauthenticated.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token.
type Static string

// Token implements TokenProvider.
func (s Static) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// File reads the token from a file on every call so an external refresher
// can rotate it in place. A missing file yields "".
type File struct {
	Path string
}

// Token implements TokenProvider.
func (f File) Token(context.Context) (string, error) {
	if f.Path == "" {
		return "", nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Chain returns the first non-empty token from its providers.
type Chain []TokenProvider

// Token implements TokenProvider.
func (c Chain) Token(ctx context.Context) (string, error) {
	for _, p := range c {
		tok, err := p.Token(ctx)
		if err != nil {
			return "", err
		}
		if tok != "" {
			return tok, nil
		}
	}
	return "", nil
}

// Resolve builds the provider chain for a static token and a token file.
func Resolve(token, tokenFile string) TokenProvider {
	return Chain{Static(token), File{Path: tokenFile}}
}
