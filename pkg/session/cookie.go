package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const signingInfo = "serverkit session cookie v1"

var errBadCookie = errors.New("session: invalid cookie")

// signer turns session ids into HS256 tokens and back.
type signer struct {
	key []byte
}

func newSigner(secret string) (*signer, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(signingInfo)), key); err != nil {
		return nil, fmt.Errorf("session: derive key: %w", err)
	}
	return &signer{key: key}, nil
}

func (s *signer) sign(id string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ID: id})
	return token.SignedString(s.key)
}

func (s *signer) verify(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims.ID == "" {
		return "", errBadCookie
	}
	return claims.ID, nil
}
