package delivery

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-webhook-delivery/adapters/gocommand"
	webhookcommand "github.com/goliatone/go-webhook-delivery/command"
	"github.com/goliatone/go-webhook-delivery/core"
	webhookquery "github.com/goliatone/go-webhook-delivery/query"
)

type EventService interface {
	webhookcommand.EventIngester
	webhookquery.EventReader
}

type SubscriptionService interface {
	webhookcommand.SubscriptionManager
	webhookquery.SubscriptionReader
}

type DeadLetterService interface {
	webhookcommand.DeadLetterRequeuer
	webhookquery.DeadLetterReader
}

// FacadeServices are the management boundaries the facade exposes.
type FacadeServices struct {
	Events        EventService
	Subscriptions SubscriptionService
	DeadLetters   DeadLetterService
	Sagas         core.SagaGetter
}

type Commands struct {
	AppendEvent            *webhookcommand.AppendEventCommand
	CreateSubscription     *webhookcommand.CreateSubscriptionCommand
	VerifySubscription     *webhookcommand.VerifySubscriptionCommand
	ActivateSubscription   *webhookcommand.ActivateSubscriptionCommand
	DeactivateSubscription *webhookcommand.DeactivateSubscriptionCommand
	RequeueDeadLetter      *webhookcommand.RequeueDeadLetterCommand
}

type Queries struct {
	GetEvent          *webhookquery.GetEventQuery
	GetSubscription   *webhookquery.GetSubscriptionQuery
	ListSubscriptions *webhookquery.ListSubscriptionsQuery
	GetSaga           *webhookquery.GetSagaQuery
	GetDeadLetter     *webhookquery.GetDeadLetterQuery
	ListDeadLetters   *webhookquery.ListDeadLettersQuery
}

type Facade struct {
	services FacadeServices
	commands Commands
	queries  Queries
}

func NewFacade(services FacadeServices) (*Facade, error) {
	switch {
	case services.Events == nil:
		return nil, fmt.Errorf("delivery: event service is required")
	case services.Subscriptions == nil:
		return nil, fmt.Errorf("delivery: subscription service is required")
	case services.DeadLetters == nil:
		return nil, fmt.Errorf("delivery: dead letter service is required")
	case services.Sagas == nil:
		return nil, fmt.Errorf("delivery: saga reader is required")
	}

	facade := &Facade{services: services}
	facade.commands = Commands{
		AppendEvent:            webhookcommand.NewAppendEventCommand(services.Events),
		CreateSubscription:     webhookcommand.NewCreateSubscriptionCommand(services.Subscriptions),
		VerifySubscription:     webhookcommand.NewVerifySubscriptionCommand(services.Subscriptions),
		ActivateSubscription:   webhookcommand.NewActivateSubscriptionCommand(services.Subscriptions),
		DeactivateSubscription: webhookcommand.NewDeactivateSubscriptionCommand(services.Subscriptions),
		RequeueDeadLetter:      webhookcommand.NewRequeueDeadLetterCommand(services.DeadLetters),
	}
	facade.queries = Queries{
		GetEvent:          webhookquery.NewGetEventQuery(services.Events),
		GetSubscription:   webhookquery.NewGetSubscriptionQuery(services.Subscriptions),
		ListSubscriptions: webhookquery.NewListSubscriptionsQuery(services.Subscriptions),
		GetSaga:           webhookquery.NewGetSagaQuery(services.Sagas),
		GetDeadLetter:     webhookquery.NewGetDeadLetterQuery(services.DeadLetters),
		ListDeadLetters:   webhookquery.NewListDeadLettersQuery(services.DeadLetters),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Services() FacadeServices {
	if f == nil {
		return FacadeServices{}
	}
	return f.services
}

// Register adds every handler to the go-command registry and subscribes it
// to the dispatcher. On failure the subscriptions made so far are released.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter) (*gocommand.Subscriptions, error) {
	if f == nil {
		return nil, fmt.Errorf("delivery: facade is not configured")
	}
	subs := &gocommand.Subscriptions{}
	steps := []func() error{
		func() error { return track(subs)(gocommand.RegisterAndSubscribe(adapter, f.commands.AppendEvent)) },
		func() error { return track(subs)(gocommand.RegisterAndSubscribe(adapter, f.commands.CreateSubscription)) },
		func() error { return track(subs)(gocommand.RegisterAndSubscribe(adapter, f.commands.VerifySubscription)) },
		func() error { return track(subs)(gocommand.RegisterAndSubscribe(adapter, f.commands.ActivateSubscription)) },
		func() error { return track(subs)(gocommand.RegisterAndSubscribe(adapter, f.commands.DeactivateSubscription)) },
		func() error { return track(subs)(gocommand.RegisterAndSubscribe(adapter, f.commands.RequeueDeadLetter)) },
		func() error { return track(subs)(gocommand.RegisterAndSubscribeQuery(adapter, f.queries.GetEvent)) },
		func() error { return track(subs)(gocommand.RegisterAndSubscribeQuery(adapter, f.queries.GetSubscription)) },
		func() error { return track(subs)(gocommand.RegisterAndSubscribeQuery(adapter, f.queries.ListSubscriptions)) },
		func() error { return track(subs)(gocommand.RegisterAndSubscribeQuery(adapter, f.queries.GetSaga)) },
		func() error { return track(subs)(gocommand.RegisterAndSubscribeQuery(adapter, f.queries.GetDeadLetter)) },
		func() error { return track(subs)(gocommand.RegisterAndSubscribeQuery(adapter, f.queries.ListDeadLetters)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			subs.Unsubscribe()
			return nil, err
		}
	}
	return subs, nil
}

func track(subs *gocommand.Subscriptions) func(commanddispatcher.Subscription, error) error {
	return func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		subs.Add(subscription)
		return nil
	}
}
