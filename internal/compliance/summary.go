package compliance

import (
	"github.com/wolfman30/leadcapture/internal/leads"
)

// VerifiedKey labels the channel verification entry of a summary.
const VerifiedKey = "Whatsapp Verified"

// Summary is the compact lead record sent to moderation and the frequency
// endpoint.
type Summary struct {
	Name           string        `json:"name"`
	MobileNumber   string        `json:"mobile_number"`
	Email          string        `json:"email"`
	SourceURL      string        `json:"source_url"`
	AdditionalData []leads.Field `json:"additional_data"`
}

// BuildSummary renders the summary of view and appends the verification entry.
func BuildSummary(labels *Labels, view leads.LeadView, defaultSourceURL string, verified bool) (Summary, error) {
	additional, err := labels.Render(view)
	if err != nil {
		return Summary{}, err
	}
	source := view.String("source_url")
	if source == "" {
		source = defaultSourceURL
	}
	flag := "No"
	if verified {
		flag = "Yes"
	}
	return Summary{
		Name:           view.String("name"),
		MobileNumber:   view.String("phone_number"),
		Email:          view.String("email"),
		SourceURL:      source,
		AdditionalData: append(additional, leads.Field{Key: VerifiedKey, Value: flag}),
	}, nil
}

// ChannelVerified reports whether the code the channel sent matches the code
// the submitter typed back. No sent code means not verified.
func ChannelVerified(sentCode, userCode string) bool {
	return sentCode != "" && sentCode == userCode
}
