// Package receiver implements POST /api/v1/reports, the endpoint that accepts
// audit reports from threadwork-agent instances.
//
// Receiver.ServeHTTP decodes the JSON body and validates it (a report needs
// an id, a page URL, a known gather mode, and either audit results or a
// runtime error). Accepted reports are written to the snapshot store, run
// through the alert engine, and recorded in history. Authentication is
// enforced upstream by the auth middleware, so the receiver itself only
// performs structural validation.
package receiver
