package meridian

import (
	"crypto/sha256"
	"encoding/hex"
)

// Identifier is a 32-byte content hash used to identify blocks, payloads and
// peers throughout the observer stack.
type Identifier [32]byte

// ZeroID is the lowest value in the 32-byte ID space.
var ZeroID = Identifier{}

// HashToID hashes arbitrary input into an Identifier.
func HashToID(data []byte) Identifier {
	return Identifier(sha256.Sum256(data))
}

// HexStringToIdentifier converts a hex string to an identifier. The input
// must be 64 characters long and contain only valid hex characters.
func HexStringToIdentifier(hexString string) (Identifier, error) {
	var id Identifier
	_, err := hex.Decode(id[:], []byte(hexString))
	if err != nil {
		return ZeroID, err
	}
	return id, nil
}

func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

func (id Identifier) Bytes() []byte {
	return id[:]
}
