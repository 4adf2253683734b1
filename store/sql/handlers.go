package sqlstore

import (
	"strconv"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Tables use database sequences, so the uuid hooks are inert and lookups go
// through the numeric identifier value.

func eventHandlers() repository.ModelHandlers[*eventRecord] {
	return repository.ModelHandlers[*eventRecord]{
		NewRecord: func() *eventRecord {
			return &eventRecord{}
		},
		GetID:         func(*eventRecord) uuid.UUID { return uuid.Nil },
		SetID:         func(*eventRecord, uuid.UUID) {},
		GetIdentifier: identifierColumn,
		GetIdentifierValue: func(record *eventRecord) string {
			if record == nil {
				return ""
			}
			return formatID(record.ID)
		},
	}
}

func subscriptionHandlers() repository.ModelHandlers[*subscriptionRecord] {
	return repository.ModelHandlers[*subscriptionRecord]{
		NewRecord: func() *subscriptionRecord {
			return &subscriptionRecord{}
		},
		GetID:         func(*subscriptionRecord) uuid.UUID { return uuid.Nil },
		SetID:         func(*subscriptionRecord, uuid.UUID) {},
		GetIdentifier: identifierColumn,
		GetIdentifierValue: func(record *subscriptionRecord) string {
			if record == nil {
				return ""
			}
			return formatID(record.ID)
		},
	}
}

func sagaHandlers() repository.ModelHandlers[*sagaRecord] {
	return repository.ModelHandlers[*sagaRecord]{
		NewRecord: func() *sagaRecord {
			return &sagaRecord{}
		},
		GetID:         func(*sagaRecord) uuid.UUID { return uuid.Nil },
		SetID:         func(*sagaRecord, uuid.UUID) {},
		GetIdentifier: identifierColumn,
		GetIdentifierValue: func(record *sagaRecord) string {
			if record == nil {
				return ""
			}
			return formatID(record.ID)
		},
	}
}

func jobHandlers() repository.ModelHandlers[*jobRecord] {
	return repository.ModelHandlers[*jobRecord]{
		NewRecord: func() *jobRecord {
			return &jobRecord{}
		},
		GetID:         func(*jobRecord) uuid.UUID { return uuid.Nil },
		SetID:         func(*jobRecord, uuid.UUID) {},
		GetIdentifier: identifierColumn,
		GetIdentifierValue: func(record *jobRecord) string {
			if record == nil {
				return ""
			}
			return formatID(record.ID)
		},
	}
}

func deadLetterHandlers() repository.ModelHandlers[*deadLetterRecord] {
	return repository.ModelHandlers[*deadLetterRecord]{
		NewRecord: func() *deadLetterRecord {
			return &deadLetterRecord{}
		},
		GetID:         func(*deadLetterRecord) uuid.UUID { return uuid.Nil },
		SetID:         func(*deadLetterRecord, uuid.UUID) {},
		GetIdentifier: identifierColumn,
		GetIdentifierValue: func(record *deadLetterRecord) string {
			if record == nil {
				return ""
			}
			return formatID(record.ID)
		},
	}
}

func identifierColumn() string {
	return "id"
}

func formatID(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
