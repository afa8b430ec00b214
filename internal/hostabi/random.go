package hostabi

import "crypto/rand"

// fillRandom fills buf with cryptographically secure random bytes for the
// fetch_random_bytes capability.
func fillRandom(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}
