// Package discovery finds Sonos zone players on the local network.
//
// Zone players advertise a "_sonos._tcp" mDNS service. Browser resolves
// those advertisements with zeroconf and reports each player's IPv4
// address once per browse, however many interfaces it answers on.
//
// The UPnP control port (1400) is not part of the advertisement; callers
// dial the reported address on the default control port.
package discovery
