/*
Package events distributes object lifecycle notifications.

The object manager publishes interface-added / interface-removed events as
entities appear and disappear; the D-Bus transport subscribes and turns
them into ObjectManager signals and (un)exports. Subscribers with full
buffers are skipped rather than blocking the publisher.
*/
package events
