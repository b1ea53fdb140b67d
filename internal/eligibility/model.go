package eligibility

import "time"

// Answers are the questionnaire responses that drive classification.
type Answers struct {
	Household                string `json:"household" db:"household" validate:"required"`
	Citizenship              string `json:"citizenship" db:"citizenship" validate:"required"`
	Requirement              string `json:"requirement" db:"requirement" validate:"required"`
	HouseholdIncome          string `json:"household_income" db:"household_income" validate:"required"`
	OwnershipStatus          string `json:"ownership_status" db:"ownership_status" validate:"required"`
	PrivatePropertyOwnership string `json:"private_property_ownership" db:"private_property_ownership" validate:"required"`
	FirstTimeApplicant       string `json:"first_time_applicant" db:"first_time_applicant" validate:"required"`
}

// Contact identifies the applicant.
type Contact struct {
	Name        string `json:"name" db:"name" validate:"required"`
	Email       string `json:"email" db:"email" validate:"required,email"`
	PhoneNumber string `json:"phone_number" db:"phone_number" validate:"required"`
}

// Form is a complete questionnaire submission.
type Form struct {
	Answers
	Contact
}

// Lead is a stored questionnaire submission. Soft-deleted leads keep their
// row with DeletedAt set.
type Lead struct {
	ID int64 `json:"id" db:"id"`
	Answers
	Contact
	VerifiedAt  *time.Time `json:"verified_at" db:"verified_at"`
	SendDiscord bool       `json:"send_discord" db:"send_discord"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at" db:"deleted_at"`
}

// Form returns the questionnaire part of the lead.
func (l *Lead) Form() Form {
	return Form{Answers: l.Answers, Contact: l.Contact}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Household                *string    `json:"household"`
	Citizenship              *string    `json:"citizenship"`
	Requirement              *string    `json:"requirement"`
	HouseholdIncome          *string    `json:"household_income"`
	OwnershipStatus          *string    `json:"ownership_status"`
	PrivatePropertyOwnership *string    `json:"private_property_ownership"`
	FirstTimeApplicant       *string    `json:"first_time_applicant"`
	Name                     *string    `json:"name"`
	Email                    *string    `json:"email"`
	PhoneNumber              *string    `json:"phone_number"`
	VerifiedAt               *time.Time `json:"verified_at"`
	SendDiscord              *bool      `json:"send_discord"`
}

// Apply copies the set fields of p onto l.
func (p Patch) Apply(l *Lead) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&l.Household, p.Household)
	set(&l.Citizenship, p.Citizenship)
	set(&l.Requirement, p.Requirement)
	set(&l.HouseholdIncome, p.HouseholdIncome)
	set(&l.OwnershipStatus, p.OwnershipStatus)
	set(&l.PrivatePropertyOwnership, p.PrivatePropertyOwnership)
	set(&l.FirstTimeApplicant, p.FirstTimeApplicant)
	set(&l.Name, p.Name)
	set(&l.Email, p.Email)
	set(&l.PhoneNumber, p.PhoneNumber)
	if p.VerifiedAt != nil {
		v := p.VerifiedAt.UTC()
		l.VerifiedAt = &v
	}
	if p.SendDiscord != nil {
		l.SendDiscord = *p.SendDiscord
	}
}
