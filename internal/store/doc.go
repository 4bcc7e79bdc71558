// Package store persists the speakers the bridge has attached.
//
// A saved speaker is its device id (the zone player serial), the address
// it was last reached at and its zone name. The adapter saves a speaker
// when it is attached and deletes it when the host removes it; a speaker
// lost to a disconnect stays saved so the next start reattaches it.
package store
