// Package sshkeys mints and encodes the RSA key pair the coordinator
// distributes to every worker, giving the fleet a mesh of mutually
// authorised SSH peers without per-pair provisioning. No repo in the
// retrieval pack imports an SSH client/server library, so key generation
// and the authorized_keys line format are built on the standard library's
// crypto/rsa, crypto/x509 and encoding/pem — see DESIGN.md.
package sshkeys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
)

const keyBits = 2048

// KeyPair is a coordinator-minted RSA key pair, kept in memory as PEM/OpenSSH
// text exactly as it travels over the wire.
type KeyPair struct {
	PrivateKeyPEM string
	PublicKeyLine string
}

// Generate produces a fresh 2048-bit RSA key pair and renders both halves:
// PrivateKeyPEM in PKCS#1 PEM form, PublicKeyLine in the single-line OpenSSH
// "ssh-rsa AAAA... comment" format accepted by authorized_keys.
func Generate(comment string) (KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("sshkeys: generate: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	pubLine, err := encodePublicKey(&key.PublicKey, comment)
	if err != nil {
		return KeyPair{}, err
	}

	return KeyPair{PrivateKeyPEM: string(privPEM), PublicKeyLine: pubLine}, nil
}

// encodePublicKey renders an RSA public key in OpenSSH wire format: the
// type string, exponent and modulus each length-prefixed as mpints,
// base64-encoded, then "ssh-rsa <base64> <comment>".
func encodePublicKey(pub *rsa.PublicKey, comment string) (string, error) {
	const keyType = "ssh-rsa"

	e := big.NewInt(int64(pub.E)).Bytes()
	n := pub.N.Bytes()

	var buf []byte
	buf = appendSSHString(buf, []byte(keyType))
	buf = appendSSHString(buf, mpint(e))
	buf = appendSSHString(buf, mpint(n))

	line := fmt.Sprintf("%s %s", keyType, b64(buf))
	if comment != "" {
		line = line + " " + comment
	}
	return line, nil
}

// mpint prepends a zero byte to b if its high bit is set, matching the SSH
// wire format for positive multi-precision integers (RFC 4251 §5).
func mpint(b []byte) []byte {
	if len(b) > 0 && b[0]&0x80 != 0 {
		out := make([]byte, len(b)+1)
		copy(out[1:], b)
		return out
	}
	return b
}

func appendSSHString(buf []byte, data []byte) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(data)))
	buf = append(buf, lenBytes[:]...)
	buf = append(buf, data...)
	return buf
}

// WritePrivateKey overwrites path with pem (mode 0600), creating parent
// directories as needed.
func WritePrivateKey(path, pem string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("sshkeys: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(pem), 0o600); err != nil {
		return fmt.Errorf("sshkeys: write %s: %w", path, err)
	}
	return nil
}

// WritePublicKey overwrites path with line plus a trailing newline.
func WritePublicKey(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("sshkeys: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimRight(line, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("sshkeys: write %s: %w", path, err)
	}
	return nil
}

// AppendAuthorizedKey appends line to path unless an identical line is
// already present (de-duplicated by exact-line match). Creates path (and
// its parent) if absent.
func AppendAuthorizedKey(path, line string) error {
	line = strings.TrimRight(line, "\n")

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("sshkeys: mkdir %s: %w", filepath.Dir(path), err)
	}

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sshkeys: read %s: %w", path, err)
	}
	for _, l := range strings.Split(string(existing), "\n") {
		if l == line {
			return nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("sshkeys: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("sshkeys: append %s: %w", path, err)
	}
	return nil
}

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
