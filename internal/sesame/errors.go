package sesame

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// unknownRepository prefixes the body of responses for missing repositories.
const unknownRepository = "Unknown repository:"

// ErrUnsupportedFormat is returned by Export for formats other than turtle.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// maxErrorBody bounds the response body quoted in a StatusError message.
const maxErrorBody = 200

// StatusError is a non-success response from the server.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxErrorBody {
		n := maxErrorBody
		for n > 0 && !utf8.RuneStart(body[n]) {
			n--
		}
		body = body[:n] + "..."
	}
	return fmt.Sprintf("sesame %s: status %d: %s", e.Op, e.Code, body)
}

// IsUnknownRepository reports whether err is the server's answer for a
// repository that does not exist.
func IsUnknownRepository(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && strings.HasPrefix(strings.TrimSpace(se.Body), unknownRepository)
}
