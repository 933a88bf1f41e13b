// Package intake talks to the scanning/storage service that must accept a
// file before the host form may reference it.
//
// Initiator obtains an upload session (target URL plus ordered hidden fields)
// from the collaborator initiation endpoint, Submitter posts one file against a
// session, and StatusClient reads the asynchronous scan outcome for a session
// reference. All three accept any HTTPDoer so tests can substitute httptest
// servers or scripted transports.
package intake
