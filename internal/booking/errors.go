package booking

import (
	"errors"
	"fmt"
	"strings"
)

// GenericFailureMessage is shown when the backend gives no usable message.
const GenericFailureMessage = "Não foi possível concluir o agendamento. Tente novamente."

// ValidationError lists required selections that are missing. It is
// raised before any network call and the flow state is left unchanged.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// RemoteError wraps a failed accessor call. Message is safe to show to the
// customer: the accessor's own message when it provides one, otherwise a
// generic fallback.
type RemoteError struct {
	Op      string
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

type userMessager interface {
	UserMessage() string
}

func remoteError(op string, err error) *RemoteError {
	msg := GenericFailureMessage
	var um userMessager
	if errors.As(err, &um) && um.UserMessage() != "" {
		msg = um.UserMessage()
	}
	return &RemoteError{Op: op, Message: msg, Err: err}
}
