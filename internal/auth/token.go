// Package auth provides bearer token minting and identity verification.
package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Strategy names.
const (
	StrategyDeterministic = "deterministic"
	StrategyRandom        = "random"
)

// Token body limits (hex characters after the prefix).
const (
	MinTokenBodyLen     = 16
	MaxTokenBodyLen     = 64
	DefaultTokenBodyLen = 40
	randomTokenBodyLen  = 32
)

var (
	// ErrInvalidTokenFormat indicates the bearer token is malformed.
	ErrInvalidTokenFormat = errors.New("invalid token format")
	// ErrUnknownStrategy indicates an unsupported minting strategy name.
	ErrUnknownStrategy = errors.New("unknown token strategy")
	// ErrMissingSecret indicates the deterministic strategy has no server secret.
	ErrMissingSecret = errors.New("token secret is required")

	prefixRegex = regexp.MustCompile(`^[a-z][a-z0-9]{0,15}_$`)
)

// TokenStrategy mints a bearer token for a (subject, solution) pair.
// The decision engine never relies on the shape of the token; it only
// resolves tokens through the entitlement store.
type TokenStrategy interface {
	Name() string
	Mint(subject, solutionID string) (string, error)
}

// NewStrategy builds the named strategy.
func NewStrategy(name, prefix, secret string, length int) (TokenStrategy, error) {
	if !prefixRegex.MatchString(prefix) {
		return nil, fmt.Errorf("invalid token prefix %q", prefix)
	}

	switch name {
	case StrategyDeterministic:
		return NewDeterministic(prefix, secret, length)
	case StrategyRandom:
		return NewRandom(prefix), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Deterministic derives the token from (subject, solution, server secret).
// The same inputs always yield the same token, so it can be regenerated
// without a storage lookup.
type Deterministic struct {
	prefix string
	key    [32]byte
	length int
}

// NewDeterministic creates a Deterministic strategy.
func NewDeterministic(prefix, secret string, length int) (*Deterministic, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if length == 0 {
		length = DefaultTokenBodyLen
	}
	if length < MinTokenBodyLen || length > MaxTokenBodyLen {
		return nil, fmt.Errorf("token length must be between %d and %d, got %d", MinTokenBodyLen, MaxTokenBodyLen, length)
	}

	return &Deterministic{
		prefix: prefix,
		key:    blake2b.Sum256([]byte(secret)),
		length: length,
	}, nil
}

// Name returns the strategy name.
func (d *Deterministic) Name() string { return StrategyDeterministic }

// Mint derives the token. Subject and solution are length-delimited so that
// ("ab","c") and ("a","bc") never collide.
func (d *Deterministic) Mint(subject, solutionID string) (string, error) {
	if subject == "" || solutionID == "" {
		return "", errors.New("subject and solution id are required")
	}

	mac, err := blake2b.New256(d.key[:])
	if err != nil {
		return "", fmt.Errorf("init keyed hash: %w", err)
	}
	fmt.Fprintf(mac, "%d:%s|%d:%s", len(subject), subject, len(solutionID), solutionID)

	digest := hex.EncodeToString(mac.Sum(nil))
	return d.prefix + digest[:d.length], nil
}

// Random generates a token independent of its inputs. It can only be
// resolved once the entitlement row holding it has been written.
type Random struct {
	prefix string
}

// NewRandom creates a Random strategy.
func NewRandom(prefix string) *Random {
	return &Random{prefix: prefix}
}

// Name returns the strategy name.
func (r *Random) Name() string { return StrategyRandom }

// Mint generates a new random token.
func (r *Random) Mint(_, _ string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return r.prefix + strings.ReplaceAll(id.String(), "-", ""), nil
}

// ValidateTokenFormat checks that a presented token is structurally plausible
// for the configured prefix. It says nothing about whether the token exists.
func ValidateTokenFormat(token, prefix string) error {
	if !strings.HasPrefix(token, prefix) {
		return ErrInvalidTokenFormat
	}
	body := token[len(prefix):]
	if len(body) < MinTokenBodyLen || len(body) > MaxTokenBodyLen {
		return ErrInvalidTokenFormat
	}
	if _, err := hex.DecodeString(padEven(body)); err != nil {
		return ErrInvalidTokenFormat
	}
	if strings.ToLower(body) != body {
		return ErrInvalidTokenFormat
	}
	return nil
}

func padEven(s string) string {
	if len(s)%2 == 1 {
		return s + "0"
	}
	return s
}
