// Package transport implements the in-process network between cache nodes.
//
// Every node owns a buffered inbox in an address table. Send never
// duplicates a message and keeps the order between one pair of nodes,
// unless a delay is injected on that pair. Tests and the example binary
// inject faults with Drop, Delay, Disconnect and Pause.
package transport
