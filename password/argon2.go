package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedArgon2 is returned for digests that are not argon2id PHC strings
// this package can verify.
var ErrMalformedArgon2 = errors.New("password: malformed argon2id digest")

var phcEncoding = base64.RawStdEncoding

// Argon2Params tunes Argon2id. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns the parameters used when argon2id is selected
// without explicit tuning.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate rejects parameters below the floor accepted for new digests.
func (p Argon2Params) Validate() error {
	switch {
	case p.Memory < 8*1024:
		return errors.New("password: argon2 memory must be >= 8192 KiB")
	case p.Time < 1:
		return errors.New("password: argon2 time must be >= 1")
	case p.Parallelism < 1:
		return errors.New("password: argon2 parallelism must be >= 1")
	case p.SaltLength < 16 || p.KeyLength < 16:
		return errors.New("password: argon2 salt and key must be >= 16 bytes")
	}
	return nil
}

// weakerThan reports whether digests made with p fall short of target.
func (p Argon2Params) weakerThan(target Argon2Params) bool {
	return p.Memory < target.Memory ||
		p.Time < target.Time ||
		p.Parallelism < target.Parallelism ||
		p.KeyLength != target.KeyLength
}

// Argon2 hashes secrets with Argon2id. The zero value can only Verify, since
// verification reads its parameters from the digest.
type Argon2 struct {
	params Argon2Params
}

// NewArgon2 validates params and returns a hasher.
func NewArgon2(params Argon2Params) (*Argon2, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2{params: params}, nil
}

// Hash returns "$argon2id$v=19$m=..,t=..,p=..$salt$key" with unpadded
// base64. Plaintext bytes are used as given.
func (a *Argon2) Hash(plaintext string) (string, error) {
	if err := a.params.Validate(); err != nil {
		return "", err
	}
	d := argon2Digest{params: a.params, salt: make([]byte, a.params.SaltLength)}
	if _, err := rand.Read(d.salt); err != nil {
		return "", err
	}
	d.key = d.derive(plaintext)
	return d.String(), nil
}

// Verify compares plaintext with digest in constant time. An empty digest
// never matches and is not an error.
func (a *Argon2) Verify(plaintext, digest string) (bool, error) {
	if digest == "" {
		return false, nil
	}
	d, err := parseArgon2(digest)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(d.derive(plaintext), d.key) == 1, nil
}

// NeedsUpgrade reports digests produced with weaker parameters than
// configured. Unparsable digests always need an upgrade.
func (a *Argon2) NeedsUpgrade(digest string) bool {
	d, err := parseArgon2(digest)
	return err != nil || d.params.weakerThan(a.params)
}

type argon2Digest struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func (d argon2Digest) derive(plaintext string) []byte {
	return argon2.IDKey([]byte(plaintext), d.salt, d.params.Time, d.params.Memory, d.params.Parallelism, d.params.KeyLength)
}

func (d argon2Digest) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, d.params.Memory, d.params.Time, d.params.Parallelism,
		phcEncoding.EncodeToString(d.salt), phcEncoding.EncodeToString(d.key))
}

// parseArgon2 reads a PHC string. Parameters below the hashing floor are still
// accepted so digests from older, weaker settings keep verifying until they
// are upgraded.
func parseArgon2(digest string) (argon2Digest, error) {
	fields := strings.Split(digest, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return argon2Digest{}, ErrMalformedArgon2
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Digest{}, fmt.Errorf("%w: unsupported version %q", ErrMalformedArgon2, fields[2])
	}

	var d argon2Digest
	n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &d.params.Memory, &d.params.Time, &d.params.Parallelism)
	if err != nil || n != 3 || d.params.Memory == 0 || d.params.Time == 0 || d.params.Parallelism == 0 ||
		fields[3] != fmt.Sprintf("m=%d,t=%d,p=%d", d.params.Memory, d.params.Time, d.params.Parallelism) {
		return argon2Digest{}, fmt.Errorf("%w: bad parameters %q", ErrMalformedArgon2, fields[3])
	}

	if d.salt, err = decodePHC(fields[4]); err != nil || len(d.salt) < 8 {
		return argon2Digest{}, fmt.Errorf("%w: bad salt", ErrMalformedArgon2)
	}
	if d.key, err = decodePHC(fields[5]); err != nil || len(d.key) == 0 {
		return argon2Digest{}, fmt.Errorf("%w: bad key", ErrMalformedArgon2)
	}
	d.params.SaltLength = uint32(len(d.salt))
	d.params.KeyLength = uint32(len(d.key))
	return d, nil
}

// decodePHC accepts the unpadded form the PHC format mandates and the padded
// form some encoders emit.
func decodePHC(s string) ([]byte, error) {
	return phcEncoding.DecodeString(strings.TrimRight(s, "="))
}
