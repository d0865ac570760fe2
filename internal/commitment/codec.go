package commitment

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/solvex/mev-shield/internal/order"
)

// Payload is the commitment data that gets hashed at commit time and
// re-presented at reveal time. Nonce and Timestamp are generated once, at
// commit, and baked into the payload before hashing.
type Payload struct {
	UserID    string     `json:"user_id"`
	Market    string     `json:"market"`
	Side      order.Side `json:"side"`
	Kind      order.Kind `json:"kind"`
	Quantity  float64    `json:"quantity"`
	Price     float64    `json:"price,omitempty"`
	Nonce     string     `json:"nonce"`
	Timestamp int64      `json:"timestamp"` // unix milliseconds
}

// Intent returns the order intent carried by the payload.
func (p *Payload) Intent() *order.Intent {
	return &order.Intent{
		UserID:   p.UserID,
		Market:   p.Market,
		Side:     p.Side,
		Kind:     p.Kind,
		Quantity: p.Quantity,
		Price:    p.Price,
	}
}

// Codec builds and verifies commit hashes and produces the opaque at-rest
// blob for the commit window. It is stateless and safe for concurrent use.
type Codec struct{}

// Hash returns the hex-encoded Keccak-256 digest of the canonical form of p.
// Canonicalization round-trips the payload through a map so keys serialize
// in sorted order; reveal-side recomputation therefore matches regardless of
// the field order the payload was reconstructed in.
func (Codec) Hash(p *Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	var fields map[string]interface{}
	err = json.Unmarshal(raw, &fields)
	if err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}

	canonical, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	return hex.EncodeToString(crypto.Keccak256(canonical)), nil
}

// Blob layout: 32-byte AES key, 12-byte GCM nonce, ciphertext. The key rides
// with the ciphertext: the commit window defends against observers of the
// pending queue, not against holders of the stored record, which is cleared
// at reveal.
const (
	blobKeySize   = 32
	blobNonceSize = 12
	blobMinSize   = blobKeySize + blobNonceSize
)

// Encrypt serializes p and encrypts it under a fresh AES-256-GCM key.
func (Codec) Encrypt(p *Payload) ([]byte, error) {
	plaintext, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	key := make([]byte, blobKeySize)
	_, err = rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	_, err = rand.Read(nonce)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	blob := make([]byte, 0, blobMinSize+len(plaintext)+gcm.Overhead())
	blob = append(blob, key...)
	blob = append(blob, nonce...)
	blob = gcm.Seal(blob, nonce, plaintext, nil)

	return blob, nil
}

// Decrypt reverses Encrypt.
func (Codec) Decrypt(blob []byte) (*Payload, error) {
	if len(blob) < blobMinSize {
		return nil, fmt.Errorf("blob too short: %d bytes", len(blob))
	}

	key := blob[:blobKeySize]
	nonce := blob[blobKeySize:blobMinSize]
	ciphertext := blob[blobMinSize:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt blob: %w", err)
	}

	var p Payload
	err = json.Unmarshal(plaintext, &p)
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &p, nil
}

// NewNonce returns a fresh hex-encoded 16-byte nonce.
func NewNonce() (string, error) {
	buf := make([]byte, 16)
	_, err := rand.Read(buf)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
