package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// KeyPrefixLabel starts every generated key.
const KeyPrefixLabel = "pcms"

// shownSecretChars is how much of the secret part KeyPrefix keeps.
const shownSecretChars = 8

var envLabel = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

// GenerateKey returns a new raw key of the form pcms-{env}-{secret}, where
// secret is 26 lowercase base32 characters from crypto/rand.
func GenerateKey(env string) (string, error) {
	if !envLabel.MatchString(env) {
		return "", fmt.Errorf("invalid environment label %q: use 1-16 lowercase letters or digits", env)
	}
	return KeyPrefixLabel + "-" + env + "-" + strings.ToLower(rand.Text()), nil
}

// HashKey returns the hex SHA-256 digest under which a key is stored.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the part of a key that is safe to display and log:
// label, env and the first characters of the secret.
func KeyPrefix(key string) string {
	parts := strings.SplitN(key, "-", 3)
	if len(parts) == 3 && len(parts[2]) > shownSecretChars {
		return parts[0] + "-" + parts[1] + "-" + parts[2][:shownSecretChars]
	}
	if len(key) > 2*shownSecretChars {
		return key[:2*shownSecretChars]
	}
	return key
}

// KeyMetadata holds the cached metadata for an API key. Principal is the CMS
// user or service the key acts for.
type KeyMetadata struct {
	ID                    string    `json:"id"`
	Principal             string    `json:"principal"`
	Name                  string    `json:"name"`
	RPMLimit              *int      `json:"rpm_limit,omitempty"`
	DailySpendLimitMicros *int64    `json:"daily_spend_limit_micros,omitempty"`
	ExpiresAt             time.Time `json:"expires_at"`
}

// NewKey is the record written when a key is issued. Only the hash of the
// raw key is stored.
type NewKey struct {
	ID                    string
	Hash                  string
	Prefix                string
	Principal             string
	Name                  string
	RPMLimit              *int
	DailySpendLimitMicros *int64
	ExpiresAt             time.Time
}

// ParseDuration extends time.ParseDuration with day ("30d") and week ("2w")
// units. The result must be positive.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	unit := time.Duration(0)
	num, ok := strings.CutSuffix(s, "d")
	if ok {
		unit = 24 * time.Hour
	} else if num, ok = strings.CutSuffix(s, "w"); ok {
		unit = 7 * 24 * time.Hour
	}

	var d time.Duration
	if unit > 0 {
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		d = time.Duration(n) * unit
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, err
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
