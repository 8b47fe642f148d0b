package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
)

// HashLen is the number of hex characters of the PRD digest kept in
// session ids and directory names.
const HashLen = 12

// sessionDirRe matches valid session directory names: a three-digit
// sequence, an underscore, and the truncated PRD hash.
var sessionDirRe = regexp.MustCompile(`^(\d{3})_([0-9a-f]{12})$`)

// HashPRD returns the truncated hex SHA-256 digest of the PRD bytes.
// Identical bytes always map to the same hash, which keys the session.
func HashPRD(prd []byte) string {
	sum := sha256.Sum256(prd)
	return hex.EncodeToString(sum[:])[:HashLen]
}

// SessionDirName formats a sequence and hash as a session directory name,
// e.g. (1, "ab12cd34ef56") -> "001_ab12cd34ef56".
func SessionDirName(seq int, hash string) string {
	return fmt.Sprintf("%03d_%s", seq, hash)
}

// ParseSessionDirName splits a session directory name back into its
// sequence number and hash. Names that do not match the layout are
// rejected.
func ParseSessionDirName(name string) (seq int, hash string, err error) {
	m := sessionDirRe.FindStringSubmatch(name)
	if m == nil {
		return 0, "", fmt.Errorf("%w: %q is not a session directory name", ErrNotFound, name)
	}
	seq, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return seq, m[2], nil
}

// IsSessionDirName reports whether name is a well-formed session
// directory name.
func IsSessionDirName(name string) bool {
	return sessionDirRe.MatchString(name)
}
