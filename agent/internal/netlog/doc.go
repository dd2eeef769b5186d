// Package netlog turns a DevTools protocol log into network records.
//
// The log is a JSON array of {method, params} messages as captured from the
// Network domain. Messages are dispatched on method with gjson and their params
// decoded into the mafredri/cdp network event types. Redirects are modelled as
// separate records linked through RedirectSource and RedirectDestination.
package netlog
