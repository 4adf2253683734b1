package sqlstore

import "github.com/goliatone/go-webhook-delivery/core"

var (
	_ core.EventAppender              = (*EventStore)(nil)
	_ core.EventGetter                = (*EventStore)(nil)
	_ core.EventLogReader             = (*EventStore)(nil)
	_ core.SubscriptionStore          = (*SubscriptionStore)(nil)
	_ core.EligibleSubscriptionReader = (*SubscriptionStore)(nil)
	_ core.SubscriptionStore          = (*CachedSubscriptionReader)(nil)
	_ core.EligibleSubscriptionReader = (*CachedSubscriptionReader)(nil)
	_ core.SagaGetter                 = (*SagaStore)(nil)
	_ core.SagaCreator                = (*SagaStore)(nil)
	_ core.SagaBatchReader            = (*SagaStore)(nil)
	_ core.SagaWriter                 = (*SagaStore)(nil)
	_ core.JobReader                  = (*JobStore)(nil)
	_ core.JobLeaser                  = (*JobStore)(nil)
	_ core.LeaseResetter              = (*JobStore)(nil)
	_ core.DeadLetterStore            = (*DeadLetterStore)(nil)
	_ core.RouterCursorStore          = (*RouterCursorStore)(nil)
)
