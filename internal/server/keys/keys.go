// Package keys implements the per-user cryptographic identity: an RSA key
// pair for copies delivered to other stores and a symmetric key for the
// owner's own archived copies.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/openchat-im/openchat/internal/common"
)

const (
	rsaBits          = 2048
	symmetricKeySize = 32
)

// Identity is the full key material stored in a user's own profile row. The
// private parts never leave the owner's personal store.
type Identity struct {
	PublicKeyPEM    string
	PrivateKeyPEM   string
	SymmetricKeyHex string
}

// GenerateIdentity creates a fresh RSA-2048 key pair (PEM, PKIX/PKCS8) and a
// random 256-bit symmetric key.
func GenerateIdentity() (*Identity, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("encoding private key: %w", err)
	}

	sym := make([]byte, symmetricKeySize)
	if _, err := rand.Read(sym); err != nil {
		return nil, fmt.Errorf("generating symmetric key: %w", err)
	}

	return &Identity{
		PublicKeyPEM:    string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		PrivateKeyPEM:   string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
		SymmetricKeyHex: hex.EncodeToString(sym),
	}, nil
}

// EncryptForRecipient encrypts plaintext with the recipient's public key
// (RSA-OAEP, SHA-256) and returns it base64-encoded.
func EncryptForRecipient(publicKeyPEM, plaintext string) (string, error) {
	pub, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return "", err
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("encrypting for recipient: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptWithPrivate reverses EncryptForRecipient. Payloads that do not
// decrypt (plaintext rows from before the keys existed, foreign formats) are
// returned unchanged so history stays readable.
func DecryptWithPrivate(privateKeyPEM, payload string) string {
	priv, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return payload
	}

	ciphertext, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return payload
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return payload
	}
	return string(plaintext)
}

// EncryptSelf encrypts plaintext with the owner's symmetric key (AES-256-CBC)
// and returns it as "<iv hex>:<ciphertext base64>".
func EncryptSelf(symmetricKeyHex, plaintext string) (string, error) {
	key, err := hex.DecodeString(symmetricKeyHex)
	if err != nil || len(key) != symmetricKeySize {
		return "", common.ErrorMissingKeys
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptSelf reverses EncryptSelf. Payloads not in the expected format or
// that fail to decrypt are returned unchanged.
func DecryptSelf(symmetricKeyHex, payload string) string {
	ivHex, ctB64, ok := strings.Cut(payload, ":")
	if !ok {
		return payload
	}

	key, err := hex.DecodeString(symmetricKeyHex)
	if err != nil || len(key) != symmetricKeySize {
		return payload
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return payload
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return payload
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return payload
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return payload
	}
	return string(plaintext)
}

func parsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, common.ErrorMissingKeys
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, common.ErrorMissingKeys
	}
	return pub, nil
}

func parsePrivateKey(privateKeyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, common.ErrorMissingKeys
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, common.ErrorMissingKeys
	}
	return priv, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padding := make([]byte, n)
	for i := range padding {
		padding[i] = byte(n)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
