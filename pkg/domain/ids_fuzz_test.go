//go:build go1.18

package domain

import "testing"

// FuzzParseRecordID checks that parsing never panics and that accepted ids
// round-trip through String.
func FuzzParseRecordID(f *testing.F) {
	f.Add("")
	f.Add("1")
	f.Add("0")
	f.Add("18446744073709551615")
	f.Add("18446744073709551616")
	f.Add("'; DROP TABLE records;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseRecordID(input)
		if err != nil {
			return
		}
		if id.IsZero() {
			t.Fatalf("accepted zero id from %q", input)
		}
		roundTrip, err := ParseRecordID(id.String())
		if err != nil {
			t.Fatalf("valid id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Fatalf("round-trip changed id: %d != %d", roundTrip, id)
		}
	})
}
