// Package supervisor restarts a driver after its transport fails.
//
// The driver itself never reconnects: a transport failure ends its loop.
// Long-running deployments wrap the dial-and-run sequence in a Supervisor,
// which redials through its Factory, limits how often that may happen and
// stops trying once the peer has failed too many times in a row.
package supervisor
