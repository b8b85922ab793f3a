// Alipay open-api request signing (RSA2): sorted key=value pairs joined with
// "&", SHA256 digest, PKCS#1 v1.5 signature, base64. The canonical join is
// exact — a single reordered or re-encoded field invalidates the signature.
package providers

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// alipaySignContent builds the canonical string: parameters sorted by name,
// empty values and the excluded names dropped, joined as k=v with "&".
func alipaySignContent(params url.Values, exclude ...string) string {
	skip := map[string]bool{}
	for _, k := range exclude {
		skip[k] = true
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		if skip[k] || params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}
	return strings.Join(pairs, "&")
}

// AlipaySign signs the parameter set, excluding any pre-existing sign field,
// and returns the base64 signature to attach as "sign".
func AlipaySign(params url.Values, key *rsa.PrivateKey) (string, error) {
	content := alipaySignContent(params, "sign")
	digest := sha256.Sum256([]byte(content))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("alipay sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// AlipayVerify checks a provider-originated signature over the parameter set,
// excluding sign and sign_type per the documented verification procedure.
func AlipayVerify(params url.Values, sig string, pub *rsa.PublicKey) error {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("alipay verify: bad base64: %w", err)
	}
	content := alipaySignContent(params, "sign", "sign_type")
	digest := sha256.Sum256([]byte(content))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], raw); err != nil {
		return fmt.Errorf("alipay verify: %w", err)
	}
	return nil
}

// ParseAlipayPrivateKey accepts a PKCS#8 PEM block or the bare base64 body
// the Alipay console hands out.
func ParseAlipayPrivateKey(raw string) (*rsa.PrivateKey, error) {
	der, err := derBytes(raw, "PRIVATE KEY")
	if err != nil {
		return nil, err
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("alipay private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("alipay private key: not RSA")
	}
	return rsaKey, nil
}

// ParseAlipayPublicKey accepts a PKIX PEM block or bare base64.
func ParseAlipayPublicKey(raw string) (*rsa.PublicKey, error) {
	der, err := derBytes(raw, "PUBLIC KEY")
	if err != nil {
		return nil, err
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("alipay public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("alipay public key: not RSA")
	}
	return rsaKey, nil
}

func derBytes(raw, blockType string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "-----") {
		block, _ := pem.Decode([]byte(trimmed))
		if block == nil {
			return nil, fmt.Errorf("bad PEM for %s", blockType)
		}
		return block.Bytes, nil
	}
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(trimmed), ""))
	if err != nil {
		return nil, fmt.Errorf("bad base64 for %s: %w", blockType, err)
	}
	return der, nil
}
