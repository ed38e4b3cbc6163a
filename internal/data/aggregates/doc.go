// Package aggregates implements the write side of roadmap trees on top of the
// node stores in internal/data/repos.
//
// Every write runs inside executeWrite, which owns the transaction boundary,
// classifies failures with MapError and reports them through Hooks. The ancestor
// progress cascade runs inside the same boundary as the write that caused it.
package aggregates
