// Package credential manages delegated-identity access tokens for forge
// installations.
//
// A Manager caches one installation token per installation id and refreshes
// it before expiry by minting a short-lived signed assertion and exchanging
// it at the forge's token endpoint. Concurrent refreshes for the same
// installation collapse into a single exchange via singleflight.
//
// Token values never leave this package except as the return value of
// Manager.Token; every other component references installations by id only.
package credential
