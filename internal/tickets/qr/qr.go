// Package qr builds the encrypted verification payload embedded in each
// ticket's QR code.
package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/skip2/go-qrcode"
)

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// Payload is the snapshot carried inside the QR image. Scanners decrypt it
// and compare the verification hash against the stored column.
type Payload struct {
	TicketNumber     string  `json:"ticket_number"`
	BookingReference string  `json:"booking_reference"`
	HolderName       string  `json:"holder_name,omitempty"`
	TierID           string  `json:"tier_id,omitempty"`
	Price            float64 `json:"price"`
}

// Encode encrypts the payload and renders it as a 256px QR PNG.
func (g *Generator) Encode(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// VerificationHash derives the stored hash for a ticket number so a scanned
// payload can be checked without decrypting the database row.
func VerificationHash(ticketNumber, bookingReference string) string {
	sum := sha256.Sum256([]byte(ticketNumber + ":" + bookingReference))
	return hex.EncodeToString(sum[:])
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
