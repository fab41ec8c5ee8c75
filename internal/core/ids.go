package core

import (
	"crypto/rand"
	"encoding/hex"
)

// Natural keys mimic the provider's visible identifier formats so catalog
// instructions and validation rules read like the real console.

func randomHex(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)[:n]
}

func newVPCID() string      { return "vpc-" + randomHex(8) }
func newSubnetID() string   { return "subnet-" + randomHex(8) }
func newGroupID() string    { return "sg-" + randomHex(8) }
func newInstanceID() string { return "i-" + randomHex(17) }
func newVolumeID() string   { return "vol-" + randomHex(8) }
