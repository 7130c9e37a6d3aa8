package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	hashTime    uint32 = 3
	hashMemory  uint32 = 64 * 1024
	hashThreads uint8  = 2
	hashKeyLen  uint32 = 32
	hashSaltLen        = 16

	// DefaultBcryptCost is the work factor used when none is configured.
	DefaultBcryptCost = 10
)

// Algorithm names accepted by New.
const (
	AlgorithmArgon2ID = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

var errInvalidHash = errors.New("invalid password hash")

// Credential is the persisted form of a password.
type Credential struct {
	Salt string
	Hash string
}

// Hasher derives credentials from plaintext passwords and verifies candidates.
type Hasher interface {
	Hash(plain string) (Credential, error)
	Compare(candidate, hash string) bool
}

// New returns the hasher for algorithm. An empty name selects argon2id.
func New(algorithm string, bcryptCost int) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", AlgorithmArgon2ID:
		return Argon2ID{}, nil
	case AlgorithmBcrypt:
		if bcryptCost == 0 {
			bcryptCost = DefaultBcryptCost
		}
		if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range", bcryptCost)
		}
		return Bcrypt{Cost: bcryptCost}, nil
	default:
		return nil, fmt.Errorf("unknown password algorithm %q", algorithm)
	}
}

// Compare verifies candidate against an encoded hash of either supported
// algorithm. Every failure, including a malformed hash, yields false.
func Compare(candidate, hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		ok, err := verifyArgon2ID(candidate, hash)
		return err == nil && ok
	case strings.HasPrefix(hash, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
	default:
		return false
	}
}

// Argon2ID hashes with argon2id using fixed parameters.
type Argon2ID struct{}

// Hash returns an argon2id hash string including parameters and salt.
func (Argon2ID) Hash(plain string) (Credential, error) {
	salt := make([]byte, hashSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, fmt.Errorf("generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(plain), salt, hashTime, hashMemory, hashThreads, hashKeyLen)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(sum)

	return Credential{
		Salt: encodedSalt,
		Hash: fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
			argon2.Version,
			hashMemory,
			hashTime,
			hashThreads,
			encodedSalt,
			encodedHash,
		),
	}, nil
}

func (Argon2ID) Compare(candidate, hash string) bool { return Compare(candidate, hash) }

// Bcrypt hashes with bcrypt at a fixed cost.
type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Hash(plain string) (Credential, error) {
	sum, err := bcrypt.GenerateFromPassword([]byte(plain), b.Cost)
	if err != nil {
		return Credential{}, fmt.Errorf("bcrypt hash: %w", err)
	}
	encoded := string(sum)
	// $2a$10$ followed by 22 characters of salt.
	return Credential{Salt: encoded[7:29], Hash: encoded}, nil
}

func (Bcrypt) Compare(candidate, hash string) bool { return Compare(candidate, hash) }

func verifyArgon2ID(password, hash string) (bool, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errInvalidHash
	}

	version, err := parseVersion(parts[2])
	if err != nil || version != argon2.Version {
		return false, errInvalidHash
	}

	mem, timeCost, threads, err := parseParams(parts[3])
	if err != nil {
		return false, errInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errInvalidHash
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false, errInvalidHash
	}

	actual := argon2.IDKey([]byte(password), salt, timeCost, mem, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}

func parseVersion(value string) (int, error) {
	if !strings.HasPrefix(value, "v=") {
		return 0, errInvalidHash
	}
	return strconv.Atoi(strings.TrimPrefix(value, "v="))
}

func parseParams(value string) (uint32, uint32, uint8, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return 0, 0, 0, errInvalidHash
	}

	mem, err := parseUint32Param(parts[0], "m=")
	if err != nil {
		return 0, 0, 0, errInvalidHash
	}
	timeCost, err := parseUint32Param(parts[1], "t=")
	if err != nil {
		return 0, 0, 0, errInvalidHash
	}
	threadsVal, err := parseUint32Param(parts[2], "p=")
	if err != nil || threadsVal == 0 || threadsVal > 255 {
		return 0, 0, 0, errInvalidHash
	}
	return mem, timeCost, uint8(threadsVal), nil
}

func parseUint32Param(value, prefix string) (uint32, error) {
	if !strings.HasPrefix(value, prefix) {
		return 0, errInvalidHash
	}
	parsed, err := strconv.ParseUint(strings.TrimPrefix(value, prefix), 10, 32)
	if err != nil {
		return 0, errInvalidHash
	}
	return uint32(parsed), nil
}
