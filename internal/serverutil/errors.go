package serverutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"feedsync/internal/domain"
)

// Error is an error that knows which HTTP status it should be reported with.
type Error struct {
	Status int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type transport struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(transport{
		Message: e.Err.Error(),
		Status:  e.Status,
	})
}

func (e *Error) UnmarshalJSON(b []byte) error {
	var t transport
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	e.Status = t.Status
	e.Err = errors.New(t.Message)
	return nil
}

// E builds an Error from a mix of status codes, messages and errors.
// Anything left unset defaults to a 500.
func E(args ...any) *Error {
	ret := &Error{
		Status: http.StatusInternalServerError,
		Err:    errors.New("internal server error"),
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		}
	}

	return ret
}

// FromDomain maps the domain sentinels onto HTTP statuses. Unknown errors
// are returned untouched and end up as a 500.
func FromDomain(err error) error {
	var sErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &sErr):
		return sErr
	case errors.Is(err, domain.ErrNotFound):
		return E(http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidPriority), errors.Is(err, domain.ErrInvalidFeedURL):
		return E(http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrConflict):
		return E(http.StatusConflict, err)
	}
	return err
}
