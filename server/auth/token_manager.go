/*
 * Copyright 2024 The Easel Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package auth provides bearer-token verification and identity resolution
// for joining clients. The identity provider itself is external; this
// package only checks the HMAC signature of its tokens and reads the
// subject.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	// ErrUnexpectedSigningMethod is returned when the signing method is
	// not HMAC.
	ErrUnexpectedSigningMethod = fmt.Errorf("unexpected signing method")

	// ErrEmptySubject is returned when a valid token carries no subject.
	ErrEmptySubject = fmt.Errorf("token has no subject")
)

// TokenManager verifies bearer tokens issued by the identity provider.
// When no secret key is configured, every token is treated as unverified
// and callers fall back to anonymous identity.
type TokenManager struct {
	secretKey string
}

// NewTokenManager creates a new TokenManager. An empty secretKey disables
// verification.
func NewTokenManager(secretKey string) *TokenManager {
	return &TokenManager{
		secretKey: secretKey,
	}
}

// Enabled reports whether token verification is configured.
func (m *TokenManager) Enabled() bool {
	return m.secretKey != ""
}

// Verify verifies the given token and returns its subject as the verified
// user ID. It returns an error when verification is disabled, the signature
// or expiry is invalid, or the subject is empty.
func (m *TokenManager) Verify(token string) (string, error) {
	if !m.Enabled() {
		return "", fmt.Errorf("token verification is disabled")
	}

	claims := &jwt.StandardClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		_, ok := token.Method.(*jwt.SigningMethodHMAC)
		if !ok {
			return nil, fmt.Errorf("%s: %w", token.Method.Alg(), ErrUnexpectedSigningMethod)
		}
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if claims.Subject == "" {
		return "", ErrEmptySubject
	}
	return claims.Subject, nil
}

// Generate signs a token for the given subject with the given lifetime. It
// exists for tests and local tooling; production tokens come from the
// identity provider.
func (m *TokenManager) Generate(subject string, lifetime time.Duration) (string, error) {
	claims := jwt.StandardClaims{
		Subject:   subject,
		ExpiresAt: time.Now().Add(lifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(m.secretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signedToken, nil
}
