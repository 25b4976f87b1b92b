package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
)

// GenerateNonce returns 16 random bytes. The nonce is both the transaction
// nonce and the AES-128 key for the transaction's order data.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, cryptoErr("generate nonce", err)
	}
	return nonce, nil
}

// WrapKey encrypts the transaction key with RSA PKCS#1 v1.5 under the
// recipient's encryption key
func WrapKey(nonce []byte, recipient *rsa.PublicKey) ([]byte, error) {
	if recipient == nil {
		return nil, cryptoErr("wrap key", errors.New("recipient public key is required"))
	}
	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, recipient, nonce)
	if err != nil {
		return nil, cryptoErr("wrap key", err)
	}
	return wrapped, nil
}

// UnwrapKey recovers a transaction key with the holder's E002 private key
func UnwrapKey(wrapped []byte, key *KeyMaterial) ([]byte, error) {
	dec, err := key.decrypter()
	if err != nil {
		return nil, cryptoErr("unwrap key", err)
	}
	nonce, err := dec.Decrypt(rand.Reader, wrapped, &rsa.PKCS1v15DecryptOptions{})
	if err != nil {
		return nil, cryptoErr("unwrap key", err)
	}
	if len(nonce) != NonceSize {
		return nil, cryptoErr("unwrap key", fmt.Errorf("unexpected key length %d", len(nonce)))
	}
	return nonce, nil
}

// EncryptPayload encrypts data with AES-128-CBC, a zero IV and ISO 10126 padding
func EncryptPayload(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cryptoErr("encrypt payload", err)
	}
	padded, err := padISO10126(data, block.BlockSize())
	if err != nil {
		return nil, cryptoErr("encrypt payload", err)
	}
	iv := make([]byte, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// DecryptPayload reverses EncryptPayload
func DecryptPayload(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cryptoErr("decrypt payload", err)
	}
	bs := block.BlockSize()
	if len(data) == 0 || len(data)%bs != 0 {
		return nil, cryptoErr("decrypt payload", fmt.Errorf("ciphertext length %d is not a multiple of %d", len(data), bs))
	}
	iv := make([]byte, bs)
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return unpadISO10126(out, bs)
}

// padISO10126 always appends 1..blockSize bytes: random fill, then the pad length
func padISO10126(data []byte, blockSize int) ([]byte, error) {
	n := blockSize - len(data)%blockSize
	pad := make([]byte, n)
	if _, err := rand.Read(pad[:n-1]); err != nil {
		return nil, err
	}
	pad[n-1] = byte(n)
	var buf bytes.Buffer
	buf.Grow(len(data) + n)
	buf.Write(data)
	buf.Write(pad)
	return buf.Bytes(), nil
}

func unpadISO10126(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, cryptoErr("decrypt payload", fmt.Errorf("invalid padding length %d", n))
	}
	return data[:len(data)-n], nil
}
