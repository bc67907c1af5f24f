package jobs

type JobType string

const (
	JobSendRegistrationConfirmation JobType = "registration.confirmation"
	JobSendRegistrationApproved     JobType = "registration.approved"
	JobSendRegistrationRejected     JobType = "registration.rejected"
	JobSendAuctionCancelled         JobType = "auction.cancelled"
)

// check to see if the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case JobSendRegistrationConfirmation,
		JobSendRegistrationApproved,
		JobSendRegistrationRejected,
		JobSendAuctionCancelled:
		return true
	default:
		return false
	}
}
