package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidFormToken = errors.New("invalid form token")

type FormTokenCreator interface {
	CreateFormToken(formId string) (token string, err error)
	VerifyFormToken(token string) (formId string, err error)
}

// HmacFormTokenCreator signs HS256 tokens whose subject is the form id.
type HmacFormTokenCreator struct {
	secret   []byte
	issuer   string
	validity time.Duration
}

func NewHmacFormTokenCreator(secret string, issuer string, validity time.Duration) (*HmacFormTokenCreator, error) {
	if len(secret) < 32 {
		return nil, errors.New("form token secret must be at least 32 bytes")
	}
	if validity <= 0 {
		validity = SessionTimeout
	}
	return &HmacFormTokenCreator{
		secret:   []byte(secret),
		issuer:   issuer,
		validity: validity,
	}, nil
}

func (tc *HmacFormTokenCreator) CreateFormToken(formId string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tc.issuer,
		Subject:   formId,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tc.validity)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.secret)
}

func (tc *HmacFormTokenCreator) VerifyFormToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return tc.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormToken, err)
	}
	if !token.Valid || claims.Subject == "" || !claims.VerifyIssuer(tc.issuer, true) {
		return "", ErrInvalidFormToken
	}
	return claims.Subject, nil
}
