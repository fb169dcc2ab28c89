// Package monitor serves the named variables of a layout to HMI dashboards.
//
// GET /ws upgrades to a websocket. The server sends
//
//	{"type":"values","seq":1,"values":{"WORK_MODE":3,"ERROR_STATE":false}}
//
// on connect and again whenever a value changes. Clients may send
//
//	{"type":"write","name":"CONTROL_WORD","value":4660}
//
// and receive {"type":"ack"} or {"type":"error","message":...}. Writes go
// to the local store and reach the peer on the next reconciliation pass.
// GET /values returns a single JSON snapshot.
package monitor
