// Package eligibility stores housing eligibility questionnaires and classifies
// each applicant into a qualification outcome and a listing page.
package eligibility

// Result is the qualification outcome of a questionnaire.
type Result string

const (
	ResultDisqualification Result = "disqualification"
	ResultCongratulation   Result = "congratulation"
	ResultMOP              Result = "mop"
	ResultAppeal           Result = "appeal"
)

// Listing pages an applicant is redirected to.
const (
	ListingAppealMOP      = "appeal-mop"
	ListingCongratulation = "congratulation"
)

// Answer literals as submitted by the questionnaire.
const (
	CitizenshipNotEligible = "No, not Singapore Citizens or Permanent Residents"
	AnswerNo               = "No"
	AnswerYes              = "Yes"
	OwnershipMOPCompleted  = "Yes, MOP completed"
	OwnershipWithinMOP     = "Yes, still within MOP"
	OwnershipNoHDB         = "No, do not own any HDB"
)

// Outcome pairs a result with the listing page for it.
type Outcome struct {
	Result  Result `json:"result"`
	Listing string `json:"listing"`
}

// WithListingPrefix returns o with prefix prepended to its listing.
func (o Outcome) WithListingPrefix(prefix string) Outcome {
	o.Listing = prefix + o.Listing
	return o
}

// Classify evaluates the ordered decision list; the first matching rule wins
// and unknown ownership statuses fall through to disqualification.
func Classify(a Answers) Outcome {
	switch {
	case a.Citizenship == CitizenshipNotEligible ||
		a.Requirement == AnswerNo ||
		a.HouseholdIncome == AnswerNo ||
		a.PrivatePropertyOwnership == AnswerYes:
		return Outcome{Result: ResultDisqualification, Listing: ListingAppealMOP}
	case a.OwnershipStatus == OwnershipMOPCompleted:
		return Outcome{Result: ResultCongratulation, Listing: ListingCongratulation}
	case a.OwnershipStatus == OwnershipWithinMOP:
		return Outcome{Result: ResultMOP, Listing: ListingAppealMOP}
	case a.OwnershipStatus == OwnershipNoHDB:
		return Outcome{Result: ResultAppeal, Listing: ListingAppealMOP}
	default:
		return Outcome{Result: ResultDisqualification, Listing: ListingAppealMOP}
	}
}
