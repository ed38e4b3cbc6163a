// Package aggregates defines the write contracts for roadmap trees and the
// error taxonomy shared by stores, services and the HTTP layer.
//
// Nothing here knows about persistence or transport.
package aggregates
