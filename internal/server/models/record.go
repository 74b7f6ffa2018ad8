package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haulhq/driveronboard/internal/common"
	"github.com/haulhq/driveronboard/internal/steps"
)

// Record is the per-step aggregate. It is linked to its Session by id only
// and can be loaded, validated and saved without touching the session row.
type Record struct {
	ID        string
	SessionID string
	Kind      steps.Step
	Payload   StepPayload
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StepPayload is the typed body of one step's record. Each step enumerates
// exactly the fields it may touch; unknown fields are rejected at decode
// time.
type StepPayload interface {
	Kind() steps.Step

	// Validate performs the structural shape check: required sub-fields
	// present, dates parseable. It never does I/O and runs before any
	// write.
	Validate() error
}

// FileRef names one file field of a payload and points at its asset in
// place, so the finalization saga can rewrite keys without knowing payload
// shapes.
type FileRef struct {
	Field string
	Asset *FileAsset
}

// FileCarrier is implemented by payloads that hold file fields.
type FileCarrier interface {
	FileRefs() []FileRef
}

// DecodePayload parses a submitted step body into its typed payload,
// rejecting unknown fields.
func DecodePayload(step steps.Step, data []byte) (StepPayload, error) {
	p, err := emptyPayload(step)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, &common.ValidationError{Reason: fmt.Sprintf("malformed %s payload: %v", step, err)}
	}

	return p, nil
}

func emptyPayload(step steps.Step) (StepPayload, error) {
	switch step {
	case steps.Prequalification:
		return &PrequalificationPayload{}, nil
	case steps.ApplicationPage1:
		return &ApplicationPage1Payload{}, nil
	case steps.ApplicationPage2:
		return &ApplicationPage2Payload{}, nil
	case steps.EmploymentHistory:
		return &EmploymentHistoryPayload{}, nil
	case steps.LicenseUpload:
		return &LicenseUploadPayload{}, nil
	case steps.PoliciesConsents:
		return &PoliciesConsentsPayload{}, nil
	case steps.DriveTest:
		return &DriveTestPayload{}, nil
	case steps.FlatbedTraining:
		return &FlatbedTrainingPayload{}, nil
	default:
		return nil, &common.ValidationError{Reason: fmt.Sprintf("unknown step %q", step)}
	}
}

// FinalizedKeys lists the non-temp object keys currently referenced by the
// payload. Used by the saga to compute superseded objects.
func FinalizedKeys(p StepPayload) []string {
	carrier, ok := p.(FileCarrier)
	if !ok {
		return nil
	}

	var keys []string
	for _, ref := range carrier.FileRefs() {
		if !ref.Asset.IsZero() && !ref.Asset.IsTemp() {
			keys = append(keys, ref.Asset.Key)
		}
	}
	return keys
}
