// Package inbound deduplicates at-least-once triggers.
//
// Each trigger key is guarded by a process-local lock and a distributed
// lease, checked against the processed ledger and executed at most once.
// Failed actions leave the key unprocessed so a redelivery can retry it.
package inbound
