package pipeline

import "fmt"

// ErrorKind classifies why an acquisition cycle failed.
type ErrorKind string

const (
	// KindTransport covers network, HTTP status and decode failures.
	KindTransport ErrorKind = "transport"
	// KindValidation covers extractor and snapshot validation rejections.
	KindValidation ErrorKind = "validation"
	// KindNoData means the source was reachable but held no rates.
	KindNoData ErrorKind = "nodata"
)

// AcquisitionError is the terminal error of a failed cycle. It never
// escapes the pipeline; it ends up in snapshot provenance and metrics.
type AcquisitionError struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition failed (%s, %d attempts): %v", e.Kind, e.Attempts, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
