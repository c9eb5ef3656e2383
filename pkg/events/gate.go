package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ErrUnauthenticated is returned when a handshake carries no usable user id
var ErrUnauthenticated = errors.New("authentication required")

// UserIDKey is the handshake field carrying the user identity
const UserIDKey = "userId"

// Handshake is the metadata a client presents when connecting. Auth is the
// structured auth payload; Query holds connection query parameters.
type Handshake struct {
	Auth  map[string]interface{}
	Query url.Values
}

// Authenticate extracts the user id from a handshake. The auth payload
// takes precedence over the query string. The id must be present and an
// integer; its range and existence are not checked.
func Authenticate(hs Handshake) (int64, error) {
	if v, ok := hs.Auth[UserIDKey]; ok && v != nil {
		return parseUserID(v)
	}
	if s := hs.Query.Get(UserIDKey); s != "" {
		return parseUserID(s)
	}
	return 0, fmt.Errorf("%w: missing %s", ErrUnauthenticated, UserIDKey)
}

func parseUserID(v interface{}) (int64, error) {
	switch id := v.(type) {
	case int:
		return int64(id), nil
	case int32:
		return int64(id), nil
	case int64:
		return id, nil
	case float64:
		if id != math.Trunc(id) || math.IsInf(id, 0) || math.Abs(id) >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %s %v is not an integer", ErrUnauthenticated, UserIDKey, id)
		}
		return int64(id), nil
	case json.Number:
		n, err := id.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q is not an integer", ErrUnauthenticated, UserIDKey, id.String())
		}
		return n, nil
	case string:
		s := strings.TrimSpace(id)
		if s == "" {
			return 0, fmt.Errorf("%w: missing %s", ErrUnauthenticated, UserIDKey)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q is not an integer", ErrUnauthenticated, UserIDKey, id)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: unsupported %s type %T", ErrUnauthenticated, UserIDKey, v)
}
