package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"strings"
)

// The marketplace web client "encrypts" login fields with a fixed key and IV
// before sending them. This only reproduces that encoding; it hides nothing.
var (
	obfuscationKey = []byte("6696D2E6F042FEC4D6E3F32AD541143B")
	obfuscationIV  = []byte("0000000000000000")
)

var urlEscaper = strings.NewReplacer("+", "%2B", "=", "%3D")

// Obfuscate turns a plaintext username or password into the value the login
// endpoint expects: AES-256-CBC, PKCS#7 padding, base64, then URL-escaped.
func Obfuscate(plaintext string) string {
	block, err := aes.NewCipher(obfuscationKey)
	if err != nil {
		panic(err)
	}
	padded := pkcs7Pad([]byte(plaintext), block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, obfuscationIV).CryptBlocks(out, padded)
	return urlEscaper.Replace(base64.StdEncoding.EncodeToString(out))
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}
