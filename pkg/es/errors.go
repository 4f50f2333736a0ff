package es

// TransportError indicates a request could not be sent to Elasticsearch,
// or the response could not be read. Connection refused, name resolution
// failure, and broken connections all end up here. HTTP error statuses do
// not: any response with a body is returned verbatim to the caller.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "elasticsearch transport error: " + e.Err.Error()
}

// Cause returns the underlying error.
func (e *TransportError) Cause() error {
	return e.Err
}

// TimeoutError indicates an operation exceeded its deadline, either while
// waiting for the service to become reachable or while waiting for a
// single request to complete.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	msg := "timed out"
	if e.Op != "" {
		msg = e.Op + " timed out"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Cause returns the underlying error.
func (e *TimeoutError) Cause() error {
	return e.Err
}

// MalformedInputError indicates a caller-supplied document payload is not
// valid JSON, or not the JSON shape an operation requires.
type MalformedInputError struct {
	Reason string
}

func (e *MalformedInputError) Error() string {
	return "malformed input: " + e.Reason
}

// IsTransport returns true if any error in err's cause chain is a
// TransportError.
func IsTransport(err error) bool {
	for ; err != nil; err = causeOf(err) {
		if _, ok := err.(*TransportError); ok {
			return true
		}
	}
	return false
}

// IsTimeout returns true if any error in err's cause chain is a
// TimeoutError.
func IsTimeout(err error) bool {
	for ; err != nil; err = causeOf(err) {
		if _, ok := err.(*TimeoutError); ok {
			return true
		}
	}
	return false
}

// IsMalformedInput returns true if any error in err's cause chain is a
// MalformedInputError.
func IsMalformedInput(err error) bool {
	for ; err != nil; err = causeOf(err) {
		if _, ok := err.(*MalformedInputError); ok {
			return true
		}
	}
	return false
}

func causeOf(err error) error {
	c, ok := err.(interface {
		Cause() error
	})
	if !ok {
		return nil
	}
	return c.Cause()
}
