package handler

const (
	errInternalServer   = "Internal server error"
	errInvalidState     = "Invalid or expired state"
	errSequenceNotFound = "Sequence not found or has no steps"
	errNoRecipients     = "No recipients to start"
	errStepConflict     = "Step with this order already exists"
	errNotConnected     = "no_refresh_token"
	errSendFailed       = "send_error"
)
