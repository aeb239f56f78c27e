/*
Package registry implements the file registry service: a catalog mapping
file ids to the locations known to hold them, driven by the
add/remove/lookup message protocol. Lookups return locations sorted by
their string form so identical runs observe identical orders.
*/
package registry
