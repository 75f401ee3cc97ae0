package directory

import (
	"encoding/json"
	"net/http"
)

// Outcome is the classification of one directory response.
type Outcome int

const (
	OK Outcome = iota
	Transient
	AuthExpired
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Transient:
		return "transient"
	case AuthExpired:
		return "auth_expired"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Classify maps a response to an Outcome. Redirects and 2xx bodies that are
// not JSON are how the directory answers an expired session (a login page).
func Classify(status int, body []byte, transportErr error) Outcome {
	if transportErr != nil {
		return Transient
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return AuthExpired
	case http.StatusTooManyRequests:
		return Transient
	}

	switch {
	case status >= 500:
		return Transient
	case status >= 200 && status < 300:
		if !json.Valid(body) {
			return AuthExpired
		}
		return OK
	}

	return Fatal
}
