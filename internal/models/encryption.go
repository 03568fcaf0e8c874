package models

// Encryption parameters for credential storage
const (
	// NonceSize is the size of the GCM nonce in bytes
	NonceSize = 12
	// KeySize is the AES-256 key size in bytes
	KeySize = 32
	// Iterations is the PBKDF2 iteration count
	Iterations = 100000
)
