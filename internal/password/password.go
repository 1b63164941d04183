package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	hashTime    uint32 = 3
	hashMemory  uint32 = 64 * 1024
	hashThreads uint8  = 2
	hashKeyLen  uint32 = 32
	hashSaltLen        = 16
)

var errInvalidHash = errors.New("invalid password hash")

// Hash returns an argon2id hash string carrying its parameters and salt.
func Hash(password string) (string, error) {
	salt := make([]byte, hashSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(password), salt, hashTime, hashMemory, hashThreads, hashKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		hashMemory,
		hashTime,
		hashThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// RandomUnusable hashes a throwaway random value. Accounts created through
// federation carry such a hash so a password login can never match.
func RandomUnusable() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random credential: %w", err)
	}
	return Hash(hex.EncodeToString(buf))
}

// Verify checks a password against an encoded argon2id hash. A malformed
// hash reports an error rather than a mismatch so callers can fold both into
// one failure mode.
func Verify(password, hash string) (bool, error) {
	params, salt, expected, err := decode(hash)
	if err != nil {
		return false, err
	}
	actual := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}

type hashParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func decode(hash string) (hashParams, []byte, []byte, error) {
	var (
		version int
		params  hashParams
		threads uint32
		rawSalt string
		rawSum  string
	)

	n, err := fmt.Sscanf(hash, "$argon2id$v=%d$m=%d,t=%d,p=%d$%s", &version, &params.memory, &params.time, &threads, &rawSalt)
	if err != nil || n != 5 || version != argon2.Version || threads == 0 || threads > 255 {
		return hashParams{}, nil, nil, errInvalidHash
	}
	params.threads = uint8(threads)

	// Sscanf leaves salt and digest joined; split on the remaining separator.
	for i := range rawSalt {
		if rawSalt[i] == '$' {
			rawSum = rawSalt[i+1:]
			rawSalt = rawSalt[:i]
			break
		}
	}
	if rawSum == "" {
		return hashParams{}, nil, nil, errInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(rawSalt)
	if err != nil {
		return hashParams{}, nil, nil, errInvalidHash
	}
	sum, err := base64.RawStdEncoding.DecodeString(rawSum)
	if err != nil {
		return hashParams{}, nil, nil, errInvalidHash
	}
	return params, salt, sum, nil
}
