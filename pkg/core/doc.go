// Package core defines the shared domain types for LeapBase: schema
// definitions, records, condition trees, requests, and the error taxonomy.
//
// The Golden Rule: pkg/core imports ONLY the standard library. Every other
// package may depend on core; core depends on nothing of ours.
package core
