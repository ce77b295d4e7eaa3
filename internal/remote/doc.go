// Package remote tracks the remote sites the control network coordinates
// with and sends them protocol-framed control messages.
//
// Site status is observed, not enforced: a site that has not been heard from
// within the timeout is reported as TIMEOUT, and after three timeouts as
// OFFLINE, but messages are still sent to it.
//
//	Heartbeat(id) ──► LastCommunication
//	                        │
//	CheckTimeouts() ────────┴──► ONLINE / TIMEOUT / OFFLINE ──► remoteSiteStatusChanged
//
//	BroadcastEmergency(reason)
//	   └── for each site: codec.For(site.Protocol).Encode ──► outbox
//	                                                            │
//	                               worker: Transport.Publish ◄──┘
//	                                       controlnet/remote/{id}/command
package remote
