package password

import (
	"errors"
	"strings"
)

// Algorithm names a supported hashing function.
type Algorithm string

const (
	// AlgorithmBcrypt selects bcrypt.
	AlgorithmBcrypt Algorithm = "bcrypt"
	// AlgorithmArgon2id selects Argon2id.
	AlgorithmArgon2id Algorithm = "argon2id"
)

// ErrUnknownDigest is returned when a stored digest matches no supported format.
var ErrUnknownDigest = errors.New("password: unknown digest format")

// Hasher is the contract the Engine relies on.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) (bool, error)
	NeedsUpgrade(digest string) bool
}

// Options selects and tunes the primary algorithm.
type Options struct {
	Algorithm  Algorithm
	BcryptCost int
	Argon2     Argon2Params
}

// Service hashes with the configured algorithm and verifies any supported digest.
type Service struct {
	primary Algorithm
	bcrypt  *Bcrypt
	argon2  *Argon2
}

// New builds a Service from opts. An empty Algorithm means bcrypt.
func New(opts Options) (*Service, error) {
	s := &Service{primary: opts.Algorithm}
	if s.primary == "" {
		s.primary = AlgorithmBcrypt
	}

	switch s.primary {
	case AlgorithmBcrypt:
		b, err := NewBcrypt(opts.BcryptCost)
		if err != nil {
			return nil, err
		}
		s.bcrypt = b
		s.argon2 = &Argon2{}
	case AlgorithmArgon2id:
		a, err := NewArgon2(opts.Argon2)
		if err != nil {
			return nil, err
		}
		s.argon2 = a
		s.bcrypt = &Bcrypt{cost: DefaultBcryptCost}
	default:
		return nil, errors.New("password: unsupported algorithm " + string(s.primary))
	}

	return s, nil
}

// Algorithm reports the algorithm new digests are produced with.
func (s *Service) Algorithm() Algorithm {
	return s.primary
}

// Hash produces a digest with the primary algorithm.
func (s *Service) Hash(plaintext string) (string, error) {
	if s.primary == AlgorithmArgon2id {
		return s.argon2.Hash(plaintext)
	}
	return s.bcrypt.Hash(plaintext)
}

// Verify checks plaintext against digest. An empty digest never matches and
// is not an error.
func (s *Service) Verify(plaintext, digest string) (bool, error) {
	switch DetectAlgorithm(digest) {
	case AlgorithmBcrypt:
		return s.bcrypt.Verify(plaintext, digest)
	case AlgorithmArgon2id:
		return s.argon2.Verify(plaintext, digest)
	}
	if digest == "" {
		return false, nil
	}
	return false, ErrUnknownDigest
}

// NeedsUpgrade reports whether digest should be replaced by a fresh Hash.
func (s *Service) NeedsUpgrade(digest string) bool {
	algo := DetectAlgorithm(digest)
	if algo != s.primary {
		return true
	}
	if algo == AlgorithmArgon2id {
		return s.argon2.NeedsUpgrade(digest)
	}
	return s.bcrypt.NeedsUpgrade(digest)
}

// DetectAlgorithm classifies a stored digest by prefix.
func DetectAlgorithm(digest string) Algorithm {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return AlgorithmArgon2id
	case strings.HasPrefix(digest, "$2a$"),
		strings.HasPrefix(digest, "$2b$"),
		strings.HasPrefix(digest, "$2y$"):
		return AlgorithmBcrypt
	default:
		return ""
	}
}
