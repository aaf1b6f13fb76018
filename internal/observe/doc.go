// Package observe is the intake path for trust observations arriving from
// outside the process: handshake requests and fresh geometry reports dropped
// onto a message queue by whatever transport the deployment uses. A worker
// pool consumes the queue and drives the handshake protocol and the drift
// detector, keeping the trust core itself free of any wire concerns.
package observe
