// Package aes7z decrypts the AES-256 coder used by 7z archives: a
// SHA-256-iterated key derived from the password and a header-supplied
// salt, applied in CBC mode.
package aes7z

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/text/encoding/unicode"
)

var (
	ErrInvalidProps = errors.New("aes7z: invalid coder properties")

	errTruncated = errors.New("aes7z: truncated cipher block")
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// parseProps unpacks the coder property blob: a bit-packed first byte
// carrying the key-stretch exponent and size extension bits, an optional
// second byte with the salt and IV lengths, then the salt and IV bytes.
func parseProps(props []byte) (power int, salt, iv []byte, err error) {
	if len(props) == 0 {
		return 0, nil, nil, ErrInvalidProps
	}
	b0 := props[0]
	power = int(b0 & 0x3f)

	saltSize := int(b0 >> 7)
	ivSize := int(b0 >> 6 & 1)
	rest := props[1:]
	if saltSize+ivSize > 0 {
		if len(rest) == 0 {
			return 0, nil, nil, ErrInvalidProps
		}
		saltSize += int(rest[0] >> 4)
		ivSize += int(rest[0] & 0x0f)
		rest = rest[1:]
	}
	if len(rest) < saltSize+ivSize {
		return 0, nil, nil, ErrInvalidProps
	}

	salt = rest[:saltSize]
	iv = make([]byte, aes.BlockSize)
	copy(iv, rest[saltSize:saltSize+ivSize])
	return power, salt, iv, nil
}

// deriveKey stretches the password into the 32-byte AES key. A power of
// 0x3f short-circuits the SHA-256 iteration and uses salt plus raw
// password bytes directly.
func deriveKey(password string, power int, salt []byte) ([]byte, error) {
	pass, err := utf16le.NewEncoder().Bytes([]byte(password))
	if err != nil {
		return nil, err
	}

	key := make([]byte, sha256.Size)
	if power == 0x3f {
		n := copy(key, salt)
		copy(key[n:], pass)
		return key, nil
	}

	h := sha256.New()
	var counter [8]byte
	for i := uint64(0); i < 1<<power; i++ {
		h.Write(salt)
		h.Write(pass)
		h.Write(counter[:])
		for j := range counter {
			counter[j]++
			if counter[j] != 0 {
				break
			}
		}
	}
	return h.Sum(key[:0]), nil
}

// NewReader decrypts r with the key derived from password and the coder
// properties. The stream length must be a whole number of cipher blocks;
// the caller trims any padding using the declared output size.
func NewReader(props []byte, password string, r io.Reader) (io.Reader, error) {
	power, salt, iv, err := parseProps(props)
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(password, power, salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &reader{
		r:     r,
		cbc:   cipher.NewCBCDecrypter(block, iv),
		chunk: make([]byte, 64*aes.BlockSize),
	}, nil
}

type reader struct {
	r     io.Reader
	cbc   cipher.BlockMode
	chunk []byte
	buf   bytes.Buffer
	err   error
}

func (d *reader) Read(p []byte) (int, error) {
	if d.buf.Len() == 0 && d.err == nil {
		d.fill()
	}
	if d.buf.Len() > 0 {
		return d.buf.Read(p)
	}
	return 0, d.err
}

func (d *reader) fill() {
	n, err := io.ReadFull(d.r, d.chunk)
	whole := n - n%aes.BlockSize
	if whole > 0 {
		d.cbc.CryptBlocks(d.chunk[:whole], d.chunk[:whole])
		d.buf.Write(d.chunk[:whole])
	}
	switch {
	case n != whole:
		d.err = errTruncated
	case err == io.ErrUnexpectedEOF:
		d.err = io.EOF
	case err != nil:
		d.err = err
	}
}
