package enums

import "fmt"

// SubmitOutcome classifies the remote store's answer to a single submission.
type SubmitOutcome string

const (
	SubmitAccepted               SubmitOutcome = "accepted"
	SubmitAlreadyExists          SubmitOutcome = "already_exists"
	SubmitAuthenticationRejected SubmitOutcome = "authentication_rejected"
	SubmitServerError            SubmitOutcome = "server_error"
	SubmitClientRejected         SubmitOutcome = "client_rejected"
)

var validSubmitOutcomes = []SubmitOutcome{
	SubmitAccepted,
	SubmitAlreadyExists,
	SubmitAuthenticationRejected,
	SubmitServerError,
	SubmitClientRejected,
}

func (o SubmitOutcome) IsValid() bool {
	for _, candidate := range validSubmitOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// Succeeded is true when the remote holds the record and the local copy can go.
func (o SubmitOutcome) Succeeded() bool {
	return o == SubmitAccepted || o == SubmitAlreadyExists
}

func (o SubmitOutcome) String() string {
	return string(o)
}

func ParseSubmitOutcome(value string) (SubmitOutcome, error) {
	for _, candidate := range validSubmitOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid submit outcome %q", value)
}
