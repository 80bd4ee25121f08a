// Package wire defines the JSON-RPC 2.0 envelope spoken by Moonraker.
//
// Every frame on the WebSocket is a single UTF-8 JSON object. Three shapes
// are exchanged:
//   - Request: client to server, carries "method", "id" and "params"
//   - Response: server to client, carries the request "id" and either
//     "result" or "error"
//   - Notification: server to client, carries "method" and "params" but
//     no "id"
//
// # Frame Classification
//
// An inbound frame that has a "method" member is a notification; anything
// else is a response and must carry an integer "id". Classification never
// looks at "result" or "error", so a response with neither member is still
// a response (with a null result).
//
// # Params
//
// Requests always carry a "params" object. A nil params value is encoded
// as {} because Moonraker rejects requests with absent params for some
// endpoints.
package wire
