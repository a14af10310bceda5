package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEvent = "tally/event/v1"
	DomainState = "tally/state/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventKey derives the unique key of a ledger event from the transaction that
// emitted it and the log position inside that transaction. The key is stable
// across re-deliveries of the same log, which is what duplicate detection
// relies on.
func EventKey(txHash string, logIndex uint32) (string, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if txHash == "" {
		return "", fmt.Errorf("EventKey: empty transaction hash")
	}
	canonical, err := MarshalCanonical(map[string]any{
		"tx_hash":   txHash,
		"log_index": logIndex,
	})
	if err != nil {
		return "", fmt.Errorf("EventKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustEventKey is like EventKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventKey(txHash string, logIndex uint32) string {
	key, err := EventKey(txHash, logIndex)
	if err != nil {
		panic(err)
	}
	return key
}

// StateDigest hashes the canonical encoding of a snapshot. Two stores holding
// the same derived state produce the same digest.
func StateDigest(s Snapshot) (string, error) {
	canonical, err := s.CanonicalJSON()
	if err != nil {
		return "", fmt.Errorf("StateDigest: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}
