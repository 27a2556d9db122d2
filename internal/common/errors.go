package common

// AppError is an error the API can show to a shopper: a stable Code for
// clients, a Message safe to display and the HTTP status to answer with.
// Err keeps the cause for logs and errors.Is; it is never rendered.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError wraps err for the client under code.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// WithDetails sets the envelope's details, e.g. per-field address errors or
// the id of an order left awaiting payment.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}
