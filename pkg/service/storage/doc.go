/*
Package storage implements a simple simulated storage service.

The service owns the mount points declared by its host's disks (or a single
unbounded "/" when there are none) and serves the four-message file
protocol — read, write, copy, delete — strictly in arrival order. Disk time
is charged with a sleep against the mount's bandwidth; network time rides
on message payloads through the kernel. Failures surface as FileNotFound,
StorageFull or ServiceDown causes on the answer, which executors translate
directly into action outcomes.

Copies are handled by the destination service, which pulls from the source
location and charges the route between the two hosts.
*/
package storage
