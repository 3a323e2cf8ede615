package entities

import (
	"encoding/hex"
	"strconv"
	"strings"

	domainerrors "commitreveal/contexts/governance/commit-reveal-voting/domain/errors"

	"golang.org/x/crypto/sha3"
)

// CommitmentSize is the width of a commitment digest in bytes.
const CommitmentSize = 32

// Commitment is the Keccak-256 digest binding a hidden (choice, secret) pair.
type Commitment [CommitmentSize]byte

// EncodeVote renders the canonical preimage of a commitment: the decimal
// choice digit immediately followed by the raw secret bytes. The choice is
// always a single digit, so no separator is needed to keep the encoding
// unambiguous.
func EncodeVote(choice Choice, secret string) ([]byte, error) {
	if !choice.Valid() {
		return nil, domainerrors.ErrInvalidChoice
	}
	preimage := make([]byte, 0, 1+len(secret))
	preimage = strconv.AppendInt(preimage, int64(choice), 10)
	preimage = append(preimage, secret...)
	return preimage, nil
}

// HashVote computes the commitment a voter submits during the commit phase.
// The same function verifies reveals, so both sides must agree on it.
func HashVote(choice Choice, secret string) (Commitment, error) {
	preimage, err := EncodeVote(choice, secret)
	if err != nil {
		return Commitment{}, err
	}
	return Keccak256(preimage), nil
}

// Keccak256 hashes data with the legacy Keccak-256 permutation used by
// Ethereum tooling.
func Keccak256(data []byte) Commitment {
	hasher := sha3.NewLegacyKeccak256()
	_, _ = hasher.Write(data)
	var out Commitment
	copy(out[:], hasher.Sum(nil))
	return out
}

// ParseCommitment decodes a hex digest, with or without a 0x prefix.
func ParseCommitment(raw string) (Commitment, error) {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		value = value[2:]
	}
	if len(value) != 2*CommitmentSize {
		return Commitment{}, domainerrors.ErrMalformedCommitment
	}
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return Commitment{}, domainerrors.ErrMalformedCommitment
	}
	var out Commitment
	copy(out[:], decoded)
	return out, nil
}

// String returns the 0x-prefixed lowercase hex form.
func (c Commitment) String() string {
	return "0x" + hex.EncodeToString(c[:])
}

func (c Commitment) IsZero() bool {
	return c == Commitment{}
}
