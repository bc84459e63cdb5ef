// Package password hashes and verifies user credentials.
//
// Stored hashes are self-describing: the scheme that produced a hash is
// identified from its prefix, so hashes created under older schemes keep
// verifying while new hashes always use the current default scheme.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// Scheme identifies the algorithm that produced a stored hash.
type Scheme string

const (
	// SchemePBKDF2SHA256 is the default scheme for new hashes. The
	// stored form is the passlib modular-crypt format
	// $pbkdf2-sha256$<rounds>$<salt>$<checksum>.
	SchemePBKDF2SHA256 Scheme = "pbkdf2-sha256"

	// SchemeBcrypt is a legacy scheme accepted for verification only.
	SchemeBcrypt Scheme = "bcrypt"
)

const (
	pbkdf2Prefix  = "$pbkdf2-sha256$"
	defaultRounds = 310000
	saltSize      = 16
	keySize       = 32

	// bcrypt ignores everything past 72 bytes of input. Longer
	// passwords are compressed through SHA-256 first so they neither
	// truncate nor error.
	bcryptMaxPasswordBytes = 72
)

// ErrUnusableScheme is returned by Hash when the configured scheme
// cannot produce a hash. It is a configuration problem, not a
// per-request one.
var ErrUnusableScheme = errors.New("no usable hashing scheme")

// Hasher produces and verifies password hashes.
type Hasher struct {
	rounds int
}

// NewHasher returns a Hasher using the default scheme parameters.
func NewHasher() *Hasher {
	return &Hasher{rounds: defaultRounds}
}

// Hash derives a salted, one-way hash of password under the default
// scheme.
func (h *Hasher) Hash(password string) (string, error) {
	if h.rounds < 1 {
		return "", fmt.Errorf("%w: invalid round count %d", ErrUnusableScheme, h.rounds)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnusableScheme, err)
	}

	key := pbkdf2.Key([]byte(password), salt, h.rounds, keySize, sha256.New)
	return pbkdf2Prefix + strconv.Itoa(h.rounds) + "$" + ab64Encode(salt) + "$" + ab64Encode(key), nil
}

// Verify reports whether password matches the stored hash. A mismatch
// is a normal false result, never an error; malformed or
// unknown-scheme hashes also verify as false.
func (h *Hasher) Verify(password, stored string) bool {
	scheme, ok := Identify(stored)
	if !ok {
		return false
	}

	switch scheme {
	case SchemePBKDF2SHA256:
		return verifyPBKDF2(password, stored)
	case SchemeBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(stored), normalizeBcryptInput(password))
		return err == nil
	default:
		return false
	}
}

// Identify reports the scheme that produced a stored hash.
func Identify(stored string) (Scheme, bool) {
	switch {
	case strings.HasPrefix(stored, pbkdf2Prefix):
		return SchemePBKDF2SHA256, true
	case strings.HasPrefix(stored, "$2a$"),
		strings.HasPrefix(stored, "$2b$"),
		strings.HasPrefix(stored, "$2y$"):
		return SchemeBcrypt, true
	default:
		return "", false
	}
}

func verifyPBKDF2(password, stored string) bool {
	// $pbkdf2-sha256$<rounds>$<salt>$<checksum>
	parts := strings.Split(stored, "$")
	if len(parts) != 5 {
		return false
	}

	rounds, err := strconv.Atoi(parts[2])
	if err != nil || rounds < 1 {
		return false
	}
	salt, err := ab64Decode(parts[3])
	if err != nil {
		return false
	}
	want, err := ab64Decode(parts[4])
	if err != nil || len(want) == 0 {
		return false
	}

	got := pbkdf2.Key([]byte(password), salt, rounds, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// hashWithBcrypt produces a legacy bcrypt hash. New hashes never use
// it; it exists so the legacy verify path stays covered.
func hashWithBcrypt(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(normalizeBcryptInput(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// normalizeBcryptInput compresses over-length passwords through a
// fixed-output digest. The same transform runs on both the hash and
// verify paths, so the result is deterministic per password.
func normalizeBcryptInput(password string) []byte {
	raw := []byte(password)
	if len(raw) <= bcryptMaxPasswordBytes {
		return raw
	}
	sum := sha256.Sum256(raw)
	return []byte(hex.EncodeToString(sum[:]))
}

// ab64Encode writes passlib's adapted base64: unpadded, with "." in
// place of "+".
func ab64Encode(data []byte) string {
	return strings.ReplaceAll(base64.RawStdEncoding.EncodeToString(data), "+", ".")
}

func ab64Decode(encoded string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.ReplaceAll(encoded, ".", "+"))
}
