package usecase

import (
	"time"

	"github.com/example/aerofindr/internal/lookup"
)

// EmptyResultMessage is shown when the lookup succeeds with no candidates.
const EmptyResultMessage = "No flights found in this area at this time"

// ProcessingError is a failure of the photo pipeline before or around the lookup.
type ProcessingError int

const (
	ErrNoMetadata ProcessingError = iota + 1
	ErrNoLocation
	ErrFailedToLoadImage
)

func (e ProcessingError) Error() string {
	switch e {
	case ErrNoMetadata:
		return "Could not extract metadata from image"
	case ErrNoLocation:
		return "No GPS location found in image. Make sure location services are enabled when taking photos."
	case ErrFailedToLoadImage:
		return "Failed to load selected image"
	default:
		return "Unknown processing error"
	}
}

// State is the presentation-facing view of a session's latest request.
// ErrorMessage is empty when there is no error.
type State struct {
	IsLoading    bool               `json:"is_loading"`
	FlightInfo   *lookup.FlightInfo `json:"flight_info"`
	ErrorMessage string             `json:"error_message,omitempty"`
	Generation   uint64             `json:"generation"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// OutcomeKind classifies how a request settled.
type OutcomeKind string

const (
	OutcomeSuccess    OutcomeKind = "success"
	OutcomeEmpty      OutcomeKind = "empty"
	OutcomeFailed     OutcomeKind = "failed"
	OutcomeSuperseded OutcomeKind = "superseded"
)

// Outcome is the settled result of one request. A superseded request never
// touched the session state.
type Outcome struct {
	Kind       OutcomeKind        `json:"kind"`
	Flight     *lookup.FlightInfo `json:"flight,omitempty"`
	Message    string             `json:"message,omitempty"`
	Generation uint64             `json:"generation"`
}

// apply folds a settled outcome into the state that follows it.
func (o Outcome) apply(generation uint64) State {
	next := State{Generation: generation}
	switch o.Kind {
	case OutcomeSuccess:
		next.FlightInfo = o.Flight
	case OutcomeEmpty, OutcomeFailed:
		next.ErrorMessage = o.Message
	}
	return next
}

func failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Message: err.Error()}
}
