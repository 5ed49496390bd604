package utils

import (
    "fmt"
    "math/rand/v2"
    "path"
    "strconv"
    "strings"
    "time"
)

// NewRequestCode returns a human-readable pickup request code of the form
// EW-YYYYMMDD-NNNN where NNNN is random in [1000, 9999].  Codes are not
// guaranteed unique; the store rejects collisions.
func NewRequestCode(now time.Time) string {
    return fmt.Sprintf("EW-%s-%d", now.UTC().Format("20060102"), 1000+rand.IntN(9000))
}

// NewOrderCode returns "ORD-" followed by the last six digits of the
// millisecond timestamp.  Two orders in the same millisecond (or exactly
// 1000 seconds apart) collide; the store rejects the second.
func NewOrderCode(now time.Time) string {
    ms := strconv.FormatInt(now.UnixMilli(), 10)
    if len(ms) > 6 {
        ms = ms[len(ms)-6:]
    }
    return "ORD-" + ms
}

// UploadObjectPath builds the object path for a user's upload:
// <userID>/<unix millis>.<ext>, keeping the original extension.
func UploadObjectPath(userID, filename string, now time.Time) string {
    ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
    if ext == "" {
        ext = "bin"
    }
    return fmt.Sprintf("%s/%d.%s", userID, now.UnixMilli(), ext)
}
