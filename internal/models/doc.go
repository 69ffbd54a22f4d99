// Package models defines the core domain models for splitclaim.
//
// # Models
//
//   - Bill: a receipt that people split, with its tax and tip amounts
//   - Item: one line on a bill; UnitPrice is the line total for that row
//   - Claim: one user taking part in splitting one item
//   - User: the local, unverified identity of whoever is claiming
//   - Totals: one user's derived share of a bill
//
// Bills and items are created out-of-band (receipt import) and are read-only to
// the client. Claims are only ever written by the claim endpoint.
//
// # Design Principles
//
//  1. Relationships are ID strings, never pointers
//  2. JSON tags match the column names of the bill store
//  3. Derived values (Totals) are never persisted
package models
