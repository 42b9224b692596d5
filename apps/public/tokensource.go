// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package public

import (
	"context"
	"sync"

	"golang.org/x/oauth2"
)

// OAuth2Token converts r for use with golang.org/x/oauth2. The raw id_token, if any, is
// available with Extra("id_token").
func (r AuthResult) OAuth2Token() *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
		Expiry:       r.ExpiresOn,
	}
	if r.IDToken.RawToken != "" {
		t = t.WithExtra(map[string]interface{}{"id_token": r.IDToken.RawToken})
	}
	return t
}

// refreshSource redeems a refresh token every time it is asked for a token, keeping the newest
// refresh token the authority returned.
type refreshSource struct {
	ctx    context.Context
	client Client
	scopes []string

	mu           sync.Mutex
	refreshToken string
}

func (s *refreshSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.client.AcquireTokenSilent(s.ctx, s.scopes, s.refreshToken)
	if err != nil {
		return nil, err
	}
	if res.RefreshToken != "" {
		s.refreshToken = res.RefreshToken
	}
	return res.OAuth2Token(), nil
}

// TokenSource returns an oauth2.TokenSource that refreshes access tokens to scopes with
// refreshToken, following refresh token rotation. Tokens are reused until they expire. ctx is
// used for every refresh.
func (pca Client) TokenSource(ctx context.Context, scopes []string, refreshToken string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &refreshSource{
		ctx:          ctx,
		client:       pca,
		scopes:       scopes,
		refreshToken: refreshToken,
	})
}
