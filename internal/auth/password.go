package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonKeyLen  = 32
	argonSaltLen = 16
)

// errMalformedHash is returned by VerifyPassword for a stored hash that is
// not an argon2id PHC string.
var errMalformedHash = errors.New("auth: malformed password hash")

// PasswordPolicy decides which passwords are accepted and the Argon2id cost
// of new hashes. Verification reads the cost from the stored hash, so
// raising it does not lock out existing accounts.
type PasswordPolicy struct {
	MinLength  int
	Iterations uint32
	MemoryKiB  uint32
	Threads    uint8
}

// DefaultPasswordPolicy returns the built-in policy.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:  MinPasswordLength,
		Iterations: 3,
		MemoryKiB:  64 * 1024,
		Threads:    1,
	}
}

// withDefaults fills zero fields from DefaultPasswordPolicy.
func (p PasswordPolicy) withDefaults() PasswordPolicy {
	def := DefaultPasswordPolicy()
	if p.MinLength <= 0 {
		p.MinLength = def.MinLength
	}
	if p.Iterations == 0 {
		p.Iterations = def.Iterations
	}
	if p.MemoryKiB == 0 {
		p.MemoryKiB = def.MemoryKiB
	}
	if p.Threads == 0 {
		p.Threads = def.Threads
	}
	return p
}

// Validate rejects passwords shorter than MinLength runes.
func (p PasswordPolicy) Validate(password string) error {
	if minLen := p.withDefaults().MinLength; len([]rune(password)) < minLen {
		return fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, minLen)
	}
	return nil
}

// Hash returns password as a PHC string:
// $argon2id$v=19$m=<memory>,t=<iterations>,p=<threads>$<salt>$<key>
func (p PasswordPolicy) Hash(password string) (string, error) {
	p = p.withDefaults()

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Threads, argonKeyLen)

	enc := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKiB, p.Iterations, p.Threads,
		enc.EncodeToString(salt), enc.EncodeToString(key)), nil
}

// ValidatePassword applies DefaultPasswordPolicy.
func ValidatePassword(password string) error {
	return DefaultPasswordPolicy().Validate(password)
}

// HashPassword hashes with DefaultPasswordPolicy.
func HashPassword(password string) (string, error) {
	return DefaultPasswordPolicy().Hash(password)
}

// VerifyPassword checks password against a hash produced by any policy.
func VerifyPassword(password, encodedHash string) (bool, error) {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), h.salt, h.iterations, h.memoryKiB, h.threads, uint32(len(h.key))) //nolint:gosec // G115: key length always fits uint32
	return subtle.ConstantTimeCompare(h.key, candidate) == 1, nil
}

// phcHash is a decoded argon2id PHC string.
type phcHash struct {
	iterations uint32
	memoryKiB  uint32
	threads    uint8
	salt, key  []byte
}

func parsePHC(encoded string) (*phcHash, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" { //nolint:mnd // PHC field count
		return nil, fmt.Errorf("%w: expected 6 fields", errMalformedHash)
	}
	if fields[1] != "argon2id" {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", errMalformedHash, fields[1])
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version %q", errMalformedHash, fields[2])
	}

	h := &phcHash{}
	for _, kv := range strings.Split(fields[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("%w: parameter %q", errMalformedHash, kv)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q", errMalformedHash, kv)
		}
		switch name {
		case "m":
			h.memoryKiB = uint32(n)
		case "t":
			h.iterations = uint32(n)
		case "p":
			if n > 255 { //nolint:mnd // threads is a uint8
				return nil, fmt.Errorf("%w: parallelism %d", errMalformedHash, n)
			}
			h.threads = uint8(n)
		default:
			return nil, fmt.Errorf("%w: unknown parameter %q", errMalformedHash, name)
		}
	}
	if h.memoryKiB == 0 || h.iterations == 0 || h.threads == 0 {
		return nil, fmt.Errorf("%w: missing cost parameter", errMalformedHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return nil, fmt.Errorf("%w: salt: %w", errMalformedHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return nil, fmt.Errorf("%w: key: %w", errMalformedHash, err)
	}
	if len(h.key) == 0 {
		return nil, fmt.Errorf("%w: empty key", errMalformedHash)
	}
	return h, nil
}
