package models

import (
	"time"

	"github.com/haulhq/driveronboard/internal/steps"
)

// CompanyContext pins a session to the hiring carrier and terminal it was
// started for.
type CompanyContext struct {
	CarrierCode string `json:"carrier_code"`
	Terminal    string `json:"terminal,omitempty"`
}

// Session is the aggregate root of one application, one per applicant.
// IdentityHash is globally unique and backs the "does an application already
// exist" check; IdentityEncrypted/IdentityNonce keep a reversible copy of
// the raw identity value for admin tooling.
//
// Progress only moves forward. Terminated is a one-way latch; once set no
// further progression is permitted. Version backs optimistic
// compare-on-write.
type Session struct {
	ID                string
	IdentityHash      string
	IdentityEncrypted []byte
	IdentityNonce     []byte
	Company           CompanyContext
	Progress          steps.Progress
	ResumeExpiresAt   time.Time
	Terminated        bool
	TerminatedReason  string
	TerminatedAt      *time.Time
	LinkedRecords     map[steps.Step]string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RecordID returns the id of the sub-record linked for the given step, if
// one has been created.
func (s *Session) RecordID(step steps.Step) (string, bool) {
	id, ok := s.LinkedRecords[step]
	return id, ok
}

// LinkRecord registers the sub-record created for a step. Links are created
// lazily as steps complete and are never re-pointed.
func (s *Session) LinkRecord(step steps.Step, recordID string) {
	if s.LinkedRecords == nil {
		s.LinkedRecords = make(map[steps.Step]string, 1)
	}
	s.LinkedRecords[step] = recordID
}
