package identity

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// checksumHex applies EIP-55 mixed-case encoding to a lowercase 40-digit hex
// address body (no 0x prefix). A letter is upper-cased when the matching
// nibble of keccak256(lowercase body) is 8 or higher.
func checksumHex(lower string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - ('a' - 'A')
		}
	}
	return string(out)
}

// ChecksumAddress renders a resolved participant in EIP-55 form for display.
func ChecksumAddress(participant string) string {
	if len(participant) != 2+addressHexLength {
		return participant
	}
	return "0x" + checksumHex(participant[2:])
}
