package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

const (
	// MinSecretLength is the length below which a webhook secret is reported as weak.
	MinSecretLength = 32

	// MinEntropy is the minimum Shannon entropy threshold for secrets.
	MinEntropy = 3.5
)

var placeholderSecrets = []string{
	"replace",
	"changeme",
	"topsecret",
	"password",
	"webhook-secret",
	"github-webhook",
}

// CheckSecret reports why a webhook secret is weak, or nil if it looks strong.
// An empty secret disables signature verification; callers handle that case
// before calling CheckSecret.
// Checks:
// - Minimum length (32 characters)
// - Not a placeholder value
// - Not a single repeated or sequential run of characters
// - Sufficient Shannon entropy (minimum 3.5)
func CheckSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("secret too short (minimum %d characters, got %d)", MinSecretLength, len(secret))
	}

	lower := strings.ToLower(secret)
	for _, placeholder := range placeholderSecrets {
		if strings.Contains(lower, placeholder) {
			return fmt.Errorf("secret appears to be a placeholder value")
		}
	}

	if len(strings.Trim(secret, string(secret[0]))) == 0 {
		return fmt.Errorf("secret is a single repeated character")
	}

	if isSequential(secret) {
		return fmt.Errorf("secret is a sequential run of characters")
	}

	if entropy := calculateEntropy(secret); entropy < MinEntropy {
		return fmt.Errorf("secret has insufficient entropy (%.2f < %.2f)", entropy, MinEntropy)
	}

	return nil
}

// GenerateSecret creates a cryptographically secure random secret.
// Returns a 48-character URL-safe base64 string.
func GenerateSecret() (string, error) {
	// 36 bytes encode to exactly 48 base64 characters
	bytes := make([]byte, 36)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// calculateEntropy computes the Shannon entropy of a string in bits per character.
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	var entropy float64
	length := float64(len(s))

	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// isSequential checks if a string consists mostly of ascending or descending runs.
func isSequential(s string) bool {
	if len(s) < 4 {
		return false
	}

	sequential := 0
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1]+1 || s[i] == s[i-1]-1 {
			sequential++
		}
	}

	// More than 70% sequential steps
	return float64(sequential) > float64(len(s))*0.7
}
