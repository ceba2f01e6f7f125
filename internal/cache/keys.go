package cache

// The cache holds two disjoint key families in one key space: short:<code>
// lookup entries (TTL-bounded, advisory) and visits:<code> counters (no TTL,
// drained only by the counter sync worker).

const (
	shortKeyPrefix  = "short:"
	visitsKeyPrefix = "visits:"

	// VisitsPattern matches every pending visit counter key.
	VisitsPattern = visitsKeyPrefix + "*"
)

// ShortURLKey returns the lookup key holding the original URL for a code.
func ShortURLKey(shortCode string) string {
	return shortKeyPrefix + shortCode
}

// VisitsKey returns the counter key holding pending visits for a code.
func VisitsKey(shortCode string) string {
	return visitsKeyPrefix + shortCode
}

// ShortCodeFromVisitsKey strips the counter prefix from a key. The second
// return value is false when the key is not a visit counter key.
func ShortCodeFromVisitsKey(key string) (string, bool) {
	if len(key) <= len(visitsKeyPrefix) || key[:len(visitsKeyPrefix)] != visitsKeyPrefix {
		return "", false
	}
	return key[len(visitsKeyPrefix):], true
}
