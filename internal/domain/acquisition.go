package domain

type AcquisitionStatus string

const (
	AcquisitionPending   AcquisitionStatus = "Pending"
	AcquisitionReceived  AcquisitionStatus = "Received"
	AcquisitionCancelled AcquisitionStatus = "Cancelled"
)

type AcquisitionEvent string

const (
	AcquisitionConfirm AcquisitionEvent = "confirm"
	AcquisitionCancel  AcquisitionEvent = "cancel"
)

// Next is the single transition function for acquisitions. Only Pending
// acquisitions move; Received and Cancelled are terminal.
func (s AcquisitionStatus) Next(event AcquisitionEvent) (AcquisitionStatus, error) {
	if s != AcquisitionPending {
		return s, &TransitionError{Entity: "acquisition", From: string(s), Event: string(event)}
	}
	switch event {
	case AcquisitionConfirm:
		return AcquisitionReceived, nil
	case AcquisitionCancel:
		return AcquisitionCancelled, nil
	default:
		return s, &TransitionError{Entity: "acquisition", From: string(s), Event: string(event)}
	}
}
