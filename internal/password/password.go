// Package password implements memory-hard password hashing and the password
// policy enforced at set/change time (spec.md §4.1).
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"

	"github.com/vactrail/backend/internal/apperr"
)

const argon2Version = 19

// Params are the Argon2id tuning knobs from spec.md §4.1.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultParams matches the specification's reference parameters:
// time_cost=2, memory_cost=64MiB, parallelism=4, salt_len=16, hash_len=32.
func DefaultParams() Params {
	return Params{
		MemoryKiB:   64 * 1024,
		Iterations:  2,
		Parallelism: 4,
		SaltLen:     16,
		KeyLen:      32,
	}
}

// Hasher hashes and verifies passwords, and enforces the password policy
// independently of hashing (spec.md: policy applies at set/change, never at
// verify).
type Hasher struct {
	current Params
}

// NewHasher builds a Hasher targeting the given parameters. Hashes produced
// under weaker historical parameters can still be verified; VerifyResult
// reports NeedsRehash so callers re-persist on next successful login.
func NewHasher(current Params) *Hasher {
	return &Hasher{current: current}
}

// Hash encodes password under the current parameters into a PHC-style
// string: $argon2id$v=19$m=...,t=...,p=...$salt$hash
func (h *Hasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.current.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "generating salt", err)
	}

	key := argon2.IDKey([]byte(plain), salt, h.current.Iterations, h.current.MemoryKiB, h.current.Parallelism, h.current.KeyLen)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		h.current.MemoryKiB, h.current.Iterations, h.current.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// VerifyResult reports whether the password matched and whether the stored
// hash should be re-persisted under the current (stronger) parameters.
type VerifyResult struct {
	Match       bool
	NeedsRehash bool
}

// Verify checks plain against an encoded hash produced by Hash. It returns
// apperr.KindStoredHashCorrupt for an unparsable encoding and a
// apperr.KindInvalidCredential-carrying result (Match=false, err=nil) for a
// clean mismatch — mismatch is not itself an error, matching spec.md's
// verify(encoded, password) -> {match, needs_rehash} contract.
func (h *Hasher) Verify(encoded, plain string) (VerifyResult, error) {
	params, salt, expected, err := decode(encoded)
	if err != nil {
		return VerifyResult{}, err
	}

	if !withinReasonableBounds(params, h.current) {
		return VerifyResult{}, apperr.New(apperr.KindStoredHashCorrupt, "hash parameters exceed configured bounds")
	}

	key := argon2.IDKey([]byte(plain), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))

	match := subtle.ConstantTimeCompare(key, expected) == 1
	needsRehash := match && weakerThan(params, h.current)
	return VerifyResult{Match: match, NeedsRehash: needsRehash}, nil
}

func weakerThan(got, want Params) bool {
	return got.MemoryKiB < want.MemoryKiB || got.Iterations < want.Iterations || got.Parallelism < want.Parallelism
}

// withinReasonableBounds guards against a corrupted or attacker-influenced
// stored hash forcing an oversized Argon2id computation on Verify.
func withinReasonableBounds(got, limit Params) bool {
	if got.MemoryKiB == 0 || got.MemoryKiB > limit.MemoryKiB*2 {
		return false
	}
	if got.Iterations == 0 || got.Iterations > limit.Iterations*4 {
		return false
	}
	if got.Parallelism == 0 || got.Parallelism > limit.Parallelism*2 {
		return false
	}
	return true
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, apperr.New(apperr.KindStoredHashCorrupt, "malformed hash encoding")
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Params{}, nil, nil, apperr.New(apperr.KindStoredHashCorrupt, "unsupported argon2 version")
	}

	var mem, iter uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return Params{}, nil, nil, apperr.New(apperr.KindStoredHashCorrupt, "malformed parameter block")
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, apperr.New(apperr.KindStoredHashCorrupt, "malformed salt")
	}
	hash, err := b64.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, apperr.New(apperr.KindStoredHashCorrupt, "malformed digest")
	}

	return Params{MemoryKiB: mem, Iterations: iter, Parallelism: par}, salt, hash, nil
}

// PolicyViolation names the first failing rule, carried on apperr's Message.
const (
	RuleMinLength  = "password must be at least 12 characters"
	RuleUppercase  = "password must contain an uppercase letter"
	RuleLowercase  = "password must contain a lowercase letter"
	RuleDigit      = "password must contain a digit"
	RuleSpecial    = "password must contain a special character"
)

const specialChars = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"

// ValidatePolicy enforces length >= 12 and one each of
// upper/lower/digit/special, returning apperr.KindWeakPassword carrying the
// first failing rule (spec.md §4.1).
func ValidatePolicy(plain string) error {
	if utf8.RuneCountInString(plain) < 12 {
		return apperr.New(apperr.KindWeakPassword, RuleMinLength)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return apperr.New(apperr.KindWeakPassword, RuleUppercase)
	case !hasLower:
		return apperr.New(apperr.KindWeakPassword, RuleLowercase)
	case !hasDigit:
		return apperr.New(apperr.KindWeakPassword, RuleDigit)
	case !hasSpecial:
		return apperr.New(apperr.KindWeakPassword, RuleSpecial)
	}
	return nil
}
