package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace-auth/internal/auth"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// redirectPostMessage is Google's sentinel redirect value for the
// in-app (non-redirect) authorization-code flow.
const redirectPostMessage = "postmessage"

// Exchange trades authorization codes for provider tokens at Google's
// token endpoint. Codes are single-use by provider contract, so nothing
// here retries.
type Exchange struct {
	conf *oauth2.Config
}

func NewExchange(clientID, clientSecret string) (*Exchange, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("google: client id and secret are required")
	}
	return &Exchange{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectPostMessage,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
	}, nil
}

// ExchangeCode posts the form-encoded authorization_code grant. The
// provider's raw error body is preserved inside ExchangeError for
// logging; callers must not expose it.
func (e *Exchange) ExchangeCode(ctx context.Context, code string) (*auth.ProviderTokens, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is empty", auth.ErrInvalidArgument)
	}

	tok, err := e.conf.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &auth.ExchangeError{
				Reason: "provider rejected code",
				Body:   string(retrieveErr.Body),
				Err:    err,
			}
		}
		return nil, &auth.ExchangeError{Reason: "malformed response", Err: err}
	}

	idToken, _ := tok.Extra("id_token").(string)

	return &auth.ProviderTokens{
		AccessToken:  tok.AccessToken,
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    expiresIn(tok),
	}, nil
}

func expiresIn(tok *oauth2.Token) int64 {
	if v, ok := tok.Extra("expires_in").(json.Number); ok {
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	if v, ok := tok.Extra("expires_in").(float64); ok {
		return int64(v)
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return int64(time.Until(tok.Expiry).Seconds())
}
