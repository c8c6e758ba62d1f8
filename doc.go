// Package rfb implements the server side of RFB 3.3 (the protocol
// underlying VNC): a single shared framebuffer, RAW-encoded incremental
// updates, and fan-out broadcast of server-originated messages to every
// connected client.
package rfb
