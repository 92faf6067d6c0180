package auth

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

const (
	// LoginProofPrefix pins the signed bytes to this service's sign-in flow so
	// a signature cannot double as authorization for anything else.
	LoginProofPrefix = "sol-sell-escrow-login/"

	// MaxProofAge is the default replay window when none is configured.
	MaxProofAge = 5 * time.Minute
)

// LoginProof is what the wallet hands back after signing the login message.
type LoginProof struct {
	Timestamp int64  `json:"timestamp"`
	Domain    string `json:"domain"`
	Nonce     string `json:"nonce"`    // server-issued challenge
	Signature string `json:"signature"` // base58, over LoginMessage bytes
}

// LoginMessage builds the exact byte string the wallet must sign:
// prefix ++ address(32) ++ domain_len(4 LE) ++ domain ++ timestamp(8 LE) ++ nonce.
func LoginMessage(address solana.PublicKey, domain string, timestamp int64, nonce string) []byte {
	message := []byte(LoginProofPrefix)
	message = append(message, address[:]...)

	domainLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(domainLen, uint32(len(domain)))
	message = append(message, domainLen...)
	message = append(message, []byte(domain)...)

	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, uint64(timestamp))
	message = append(message, ts...)

	message = append(message, []byte(nonce)...)
	return message
}

// VerifyLoginProof checks a wallet's ed25519 signature over the login message.
// Solana wallets sign the raw message bytes; the address itself is the public
// key. The nonce's one-time-use property is enforced by the caller, not here.
func VerifyLoginProof(addressStr string, proof LoginProof, maxAge time.Duration, allowedDomains []string) error {
	if maxAge <= 0 {
		maxAge = MaxProofAge
	}
	proofTime := time.Unix(proof.Timestamp, 0)
	if time.Since(proofTime) > maxAge {
		return fmt.Errorf("login proof expired: %s old", time.Since(proofTime).Round(time.Second))
	}
	if proofTime.After(time.Now().Add(1 * time.Minute)) {
		return fmt.Errorf("login proof timestamp is in the future")
	}

	if !isDomainAllowed(proof.Domain, allowedDomains) {
		return fmt.Errorf("domain %q not in allowed list", proof.Domain)
	}

	address, err := solana.PublicKeyFromBase58(addressStr)
	if err != nil {
		return fmt.Errorf("invalid wallet address: %w", err)
	}
	sig, err := solana.SignatureFromBase58(proof.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}

	message := LoginMessage(address, proof.Domain, proof.Timestamp, proof.Nonce)
	if !ed25519.Verify(ed25519.PublicKey(address[:]), message, sig[:]) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func isDomainAllowed(domain string, allowed []string) bool {
	if len(allowed) == 0 {
		return true // empty list means dev mode, everything allowed
	}
	for _, d := range allowed {
		if d == domain {
			return true
		}
	}
	return false
}
