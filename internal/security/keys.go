package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// MinSecretLength is the minimum length of an HMAC signing secret.
const MinSecretLength = 32

const filePrefix = "file:"

// SigningKey is one JWT signing key: an HMAC secret (HS256) or an asymmetric
// private key (RS256/ES256) with its public half used for verification.
type SigningKey struct {
	method      jwt.SigningMethod
	signKey     any
	verifyKey   any
	fingerprint string
}

// Alg returns the JWT alg header value for this key.
func (k *SigningKey) Alg() string {
	return k.method.Alg()
}

// Fingerprint identifies the key material without revealing it.
func (k *SigningKey) Fingerprint() string {
	return k.fingerprint
}

// LoadSigningKey builds a SigningKey from configuration. material is either
// inline PEM, "file:<path>" pointing at a PEM private key, or a raw HMAC secret
// of at least MinSecretLength bytes.
func LoadSigningKey(material string) (*SigningKey, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(material, "-----BEGIN") || strings.HasPrefix(material, filePrefix) {
		signer, err := ParsePrivateKey(strings.TrimPrefix(material, filePrefix))
		if err != nil {
			return nil, err
		}
		return NewAsymmetricKey(signer)
	}
	return NewHMACKey([]byte(material))
}

// NewHMACKey returns an HS256 SigningKey for secret.
func NewHMACKey(secret []byte) (*SigningKey, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrInvalidKey
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &SigningKey{
		method:      jwt.SigningMethodHS256,
		signKey:     s,
		verifyKey:   s,
		fingerprint: fingerprint(s),
	}, nil
}

// NewAsymmetricKey returns an RS256 or ES256 SigningKey for signer.
func NewAsymmetricKey(signer crypto.Signer) (*SigningKey, error) {
	pub := signer.Public()
	var method jwt.SigningMethod
	switch KeyAlg(pub) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return &SigningKey{
		method:      method,
		signKey:     signer,
		verifyKey:   pub,
		fingerprint: fingerprint(der),
	}, nil
}

func fingerprint(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:8])
}

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
// Literal "\n" sequences in inline PEM (common in env files) are turned into newlines.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// KeyAlg returns "RS256" for RSA and "ES256" for ECDSA P-256; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve.Params().Name == "P-256" {
			return "ES256"
		}
		return ""
	default:
		return ""
	}
}
