// Package core contains the backorder domain types, collaborator contracts,
// configuration and error taxonomy. Stores, clients and runners live in
// sibling packages and depend on core, never the other way around.
package core
