package cryptox

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openpos/companysync/internal/common"
)

// AlgorithmAESGCM identifies the local field-encryption algorithm in key ids.
const AlgorithmAESGCM = "aes256gcm"

// NewKeyID returns an identifier of the form
// "<algorithm>-<unix seconds>-<4 hex chars>". The timestamp component is
// parseable so the UI can show key age; the random suffix disambiguates
// keys created within the same second.
func NewKeyID(algorithm string, now time.Time) (string, error) {
	suffix, err := common.MakeRandHexString(2)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%s", algorithm, now.Unix(), suffix), nil
}

// ParseKeyID extracts the algorithm and creation time from a key id.
// Returns common.ErrInvalidFormat for ids that do not follow the scheme.
func ParseKeyID(keyID string) (algorithm string, createdAt time.Time, err error) {
	parts := strings.Split(keyID, "-")
	if len(parts) != 3 || parts[0] == "" || len(parts[2]) != 4 {
		return "", time.Time{}, common.ErrInvalidFormat
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ts <= 0 {
		return "", time.Time{}, common.ErrInvalidFormat
	}
	return parts[0], time.Unix(ts, 0), nil
}

// KeyAge returns how old the key identified by keyID is at now.
func KeyAge(keyID string, now time.Time) (time.Duration, error) {
	_, createdAt, err := ParseKeyID(keyID)
	if err != nil {
		return 0, err
	}
	return now.Sub(createdAt), nil
}
