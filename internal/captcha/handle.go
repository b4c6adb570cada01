package captcha

import (
	"encoding/base64"
	"fmt"
	"time"
)

const handleRandomLen = 10

// encodeHandle builds an opaque lookup key from the process-wide issue
// counter, a fresh 10-character random component and the current
// second-of-minute, dot-delimited and base64url-encoded without padding so
// the handle drops into a URL path segment unescaped. Nothing ever decodes
// a handle; the counter plus randomness just make two outputs of one
// process effectively never collide.
func encodeHandle(counter uint64, alphabet string, now time.Time) (string, error) {
	random, err := Generate(alphabet, handleRandomLen)
	if err != nil {
		return "", err
	}
	raw := fmt.Sprintf("%d.%s.%s", counter, random, now.Format("05"))
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}
