package bundle

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// GenerateKeypair writes a fresh Ed25519 keypair: the private key as PKCS#8
// PEM (mode 0600), the public key as PKIX PEM.
func GenerateKeypair(privateKeyPath, publicKeyPath string) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("bundle: generate keypair: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("bundle: encode private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("bundle: encode public key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	for _, out := range []struct {
		path string
		data []byte
		mode os.FileMode
	}{
		{privateKeyPath, privPEM, 0600},
		{publicKeyPath, pubPEM, 0644},
	} {
		if dir := filepath.Dir(out.path); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return fmt.Errorf("bundle: create key dir: %w", err)
			}
		}
		if err := os.WriteFile(out.path, out.data, out.mode); err != nil {
			return fmt.Errorf("bundle: write key: %w", err)
		}
	}
	return nil
}

// Sign signs the raw policy bytes with the PEM private key and returns the
// base64 signature for embedding in a bundle.
func Sign(policyPath, privateKeyPath string) (string, error) {
	content, err := os.ReadFile(policyPath)
	if err != nil {
		return "", fmt.Errorf("bundle: read policy: %w", err)
	}
	key, err := loadPrivateKey(privateKeyPath)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(key, content)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifySignature checks the bundle's signature over the raw policy bytes.
// Structural problems (missing signature, bad key) surface as SigningError;
// a signature that does not verify returns false with no error.
func VerifySignature(policyPath, bundlePath, publicKeyPath string) (bool, error) {
	b, err := Read(bundlePath)
	if err != nil {
		return false, err
	}
	if b.Signature.SigB64 == "" {
		return false, signingErrorf("bundle missing signature")
	}

	key, err := loadPublicKey(publicKeyPath)
	if err != nil {
		return false, err
	}
	sig, err := base64.StdEncoding.DecodeString(b.Signature.SigB64)
	if err != nil {
		return false, signingErrorf("signature is not valid base64: %v", err)
	}
	content, err := os.ReadFile(policyPath)
	if err != nil {
		return false, fmt.Errorf("bundle: read policy: %w", err)
	}
	return ed25519.Verify(key, content, sig), nil
}

func loadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, signingErrorf("private key is not PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, signingErrorf("parse private key: %v", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, signingErrorf("private key is not ed25519")
	}
	return key, nil
}

func loadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: read public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, signingErrorf("public key is not PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, signingErrorf("parse public key: %v", err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, signingErrorf("public key is not ed25519")
	}
	return key, nil
}
