package core

import (
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ErrNoCollection is returned for criteria that do not name a collection.
var ErrNoCollection = errors.New("core: criteria has no collection")

// QueryError is a command the store rejected.
type QueryError struct {
	Message   string
	Assertion string
	Code      int
}

func (e *QueryError) Error() string {
	if e.Assertion != "" {
		return e.Message + ": " + e.Assertion
	}
	return e.Message
}

// ConnectionError is a failure to reach or set up the store.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "core: connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// commandFailure returns the QueryError of a failed command reply, or nil
// when the reply reports success.
func commandFailure(reply bson.M) *QueryError {
	if truthy(reply["ok"]) {
		return nil
	}
	qe := &QueryError{Message: "command failed"}
	if msg, ok := reply["errmsg"].(string); ok && msg != "" {
		qe.Message = msg
	}
	if a, ok := reply["assertion"].(string); ok {
		qe.Assertion = a
	}
	qe.Code = toInt(reply["code"])
	return qe
}

// asQueryError turns a server side command error into a QueryError.
func asQueryError(err error) (*QueryError, bool) {
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return &QueryError{Message: ce.Message, Code: int(ce.Code)}, true
	}
	return nil, false
}

func truthy(v any) bool {
	switch n := v.(type) {
	case bool:
		return n
	case float64:
		return n != 0
	case float32:
		return n != 0
	case int32:
		return n != 0
	case int64:
		return n != 0
	case int:
		return n != 0
	}
	return false
}

func toInt(v any) int {
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
