// Package core contains the webhook delivery domain values, the saga state
// machine rules, and the narrow capability contracts each background role is
// given. Storage, transport, and CLI packages depend on core; core depends on
// none of them.
//
// Saga lifecycle:
// pending -> in_progress -> completed
// in_progress -> pending_retry -> in_progress
// in_progress -> dead_lettered
package core
