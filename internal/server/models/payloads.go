package models

import (
	"time"

	"github.com/haulhq/driveronboard/internal/common"
	"github.com/haulhq/driveronboard/internal/history"
	"github.com/haulhq/driveronboard/internal/steps"
)

// PrequalificationPayload records the screening answers collected before
// the application proper.
type PrequalificationPayload struct {
	AgeEligible        bool `json:"age_eligible"`
	HasCDL             bool `json:"has_cdl"`
	TwoYearsExperience bool `json:"two_years_experience"`
	EligibleToWork     bool `json:"eligible_to_work"`
}

func (p *PrequalificationPayload) Kind() steps.Step { return steps.Prequalification }

func (p *PrequalificationPayload) Validate() error { return nil }

// ApplicationPage1Payload holds the applicant's contact details.
type ApplicationPage1Payload struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

func (p *ApplicationPage1Payload) Kind() steps.Step { return steps.ApplicationPage1 }

func (p *ApplicationPage1Payload) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"first_name", p.FirstName},
		{"last_name", p.LastName},
		{"phone", p.Phone},
		{"email", p.Email},
	} {
		if f.value == "" {
			return &common.ValidationError{Field: f.name, Reason: "required"}
		}
	}
	return nil
}

// ApplicationPage2Payload holds position preferences.
type ApplicationPage2Payload struct {
	DesiredPosition string `json:"desired_position"`
	ReferralSource  string `json:"referral_source,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

func (p *ApplicationPage2Payload) Kind() steps.Step { return steps.ApplicationPage2 }

func (p *ApplicationPage2Payload) Validate() error {
	if p.DesiredPosition == "" {
		return &common.ValidationError{Field: "desired_position", Reason: "required"}
	}
	return nil
}

// EmploymentHistoryPayload holds the date-ranged employment entries.
// Structural validation leaves the interval rules to the history validator.
type EmploymentHistoryPayload struct {
	Entries []history.Entry `json:"entries"`
}

func (p *EmploymentHistoryPayload) Kind() steps.Step { return steps.EmploymentHistory }

func (p *EmploymentHistoryPayload) Validate() error {
	if len(p.Entries) == 0 {
		return &common.ValidationError{Field: "entries", Reason: "required"}
	}
	return nil
}

// LicenseUploadPayload holds license details plus both sides of the license
// photo.
type LicenseUploadPayload struct {
	LicenseNumber string    `json:"license_number"`
	LicenseClass  string    `json:"license_class"`
	ExpiresOn     string    `json:"expires_on"`
	LicenseFront  FileAsset `json:"license_front"`
	LicenseBack   FileAsset `json:"license_back"`
}

func (p *LicenseUploadPayload) Kind() steps.Step { return steps.LicenseUpload }

func (p *LicenseUploadPayload) Validate() error {
	if p.LicenseNumber == "" {
		return &common.ValidationError{Field: "license_number", Reason: "required"}
	}
	if p.LicenseClass == "" {
		return &common.ValidationError{Field: "license_class", Reason: "required"}
	}
	if _, err := time.Parse("2006-01-02", p.ExpiresOn); err != nil {
		return &common.ValidationError{Field: "expires_on", Reason: "invalid date"}
	}
	if p.LicenseFront.IsZero() {
		return &common.ValidationError{Field: "license_front", Reason: "required"}
	}
	if p.LicenseBack.IsZero() {
		return &common.ValidationError{Field: "license_back", Reason: "required"}
	}
	return nil
}

func (p *LicenseUploadPayload) FileRefs() []FileRef {
	return []FileRef{
		{Field: "license_front", Asset: &p.LicenseFront},
		{Field: "license_back", Asset: &p.LicenseBack},
	}
}

// PoliciesConsentsPayload holds the policy acknowledgements and the signed
// consent form.
type PoliciesConsentsPayload struct {
	DrugPolicyAccepted   bool      `json:"drug_policy_accepted"`
	SafetyPolicyAccepted bool      `json:"safety_policy_accepted"`
	Signature            FileAsset `json:"signature"`
}

func (p *PoliciesConsentsPayload) Kind() steps.Step { return steps.PoliciesConsents }

func (p *PoliciesConsentsPayload) Validate() error {
	if !p.DrugPolicyAccepted {
		return &common.ValidationError{Field: "drug_policy_accepted", Reason: "consent required"}
	}
	if !p.SafetyPolicyAccepted {
		return &common.ValidationError{Field: "safety_policy_accepted", Reason: "consent required"}
	}
	if p.Signature.IsZero() {
		return &common.ValidationError{Field: "signature", Reason: "required"}
	}
	return nil
}

func (p *PoliciesConsentsPayload) FileRefs() []FileRef {
	return []FileRef{{Field: "signature", Asset: &p.Signature}}
}

// DriveTestPayload records the road test outcome. A failed test terminates
// the session; the rule itself lives in the orchestrator.
type DriveTestPayload struct {
	Passed     bool      `json:"passed"`
	Examiner   string    `json:"examiner"`
	TestedOn   string    `json:"tested_on"`
	Notes      string    `json:"notes,omitempty"`
	ScoreSheet FileAsset `json:"score_sheet"`
}

func (p *DriveTestPayload) Kind() steps.Step { return steps.DriveTest }

func (p *DriveTestPayload) Validate() error {
	if p.Examiner == "" {
		return &common.ValidationError{Field: "examiner", Reason: "required"}
	}
	if _, err := time.Parse("2006-01-02", p.TestedOn); err != nil {
		return &common.ValidationError{Field: "tested_on", Reason: "invalid date"}
	}
	if p.ScoreSheet.IsZero() {
		return &common.ValidationError{Field: "score_sheet", Reason: "required"}
	}
	return nil
}

func (p *DriveTestPayload) FileRefs() []FileRef {
	return []FileRef{{Field: "score_sheet", Asset: &p.ScoreSheet}}
}

// FlatbedTrainingPayload records completion of the final training module.
type FlatbedTrainingPayload struct {
	CompletedOn string    `json:"completed_on"`
	Trainer     string    `json:"trainer"`
	Certificate FileAsset `json:"certificate"`
}

func (p *FlatbedTrainingPayload) Kind() steps.Step { return steps.FlatbedTraining }

func (p *FlatbedTrainingPayload) Validate() error {
	if _, err := time.Parse("2006-01-02", p.CompletedOn); err != nil {
		return &common.ValidationError{Field: "completed_on", Reason: "invalid date"}
	}
	if p.Trainer == "" {
		return &common.ValidationError{Field: "trainer", Reason: "required"}
	}
	if p.Certificate.IsZero() {
		return &common.ValidationError{Field: "certificate", Reason: "required"}
	}
	return nil
}

func (p *FlatbedTrainingPayload) FileRefs() []FileRef {
	return []FileRef{{Field: "certificate", Asset: &p.Certificate}}
}
