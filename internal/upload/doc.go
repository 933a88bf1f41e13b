// Package upload tracks files selected for attachment through submission to
// the intake service, confirmation, and removal.
//
// Next is the pure transition function of a single task. Strategy resolves a
// submission into a reference, either by inspecting the redirect that carries
// the outcome or by polling the status endpoint. Coordinator owns the rows,
// the current intake session, and the reference store; it is the only place
// that performs side effects.
package upload
