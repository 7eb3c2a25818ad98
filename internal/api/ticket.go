package api

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TicketClaims are the JWT claims carried by a signed exam ticket. The server
// is the verifier; the client only extracts identity from it.
type TicketClaims struct {
	ExamID      string `json:"exam_id"`
	CandidateID string `json:"candidate_id"`
	jwt.RegisteredClaims
}

// ParseTicketUnverified extracts claims without signature verification, for
// the client side where no secret is (or should be) available.
func ParseTicketUnverified(ticket string) (*TicketClaims, error) {
	claims := &TicketClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(ticket, claims); err != nil {
		return nil, fmt.Errorf("parse ticket: %w", err)
	}
	if claims.ExamID == "" || claims.CandidateID == "" {
		return nil, fmt.Errorf("ticket missing exam or candidate identity")
	}
	return claims, nil
}

// SignTicket issues a ticket, used by the devserver and by tests.
func SignTicket(claims *TicketClaims, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign ticket: %w", err)
	}
	return signed, nil
}

// VerifyTicket parses and verifies a ticket with the shared secret.
func VerifyTicket(ticket, secret string) (*TicketClaims, error) {
	claims := &TicketClaims{}
	token, err := jwt.ParseWithClaims(ticket, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify ticket: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid ticket")
	}
	return claims, nil
}
