package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[AppendEventMessage]            = (*AppendEventCommand)(nil)
	_ gocmd.Commander[CreateSubscriptionMessage]     = (*CreateSubscriptionCommand)(nil)
	_ gocmd.Commander[VerifySubscriptionMessage]     = (*VerifySubscriptionCommand)(nil)
	_ gocmd.Commander[ActivateSubscriptionMessage]   = (*ActivateSubscriptionCommand)(nil)
	_ gocmd.Commander[DeactivateSubscriptionMessage] = (*DeactivateSubscriptionCommand)(nil)
	_ gocmd.Commander[RequeueDeadLetterMessage]      = (*RequeueDeadLetterCommand)(nil)
)
