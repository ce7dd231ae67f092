// Package buffer provides a generic fixed-capacity ring buffer.
//
// The message bus keeps the most recent broker messages in a Ring so that
// late-starting consumers can inspect recent traffic without any form of
// persistence. Eviction is strict FIFO; reads are newest-first.
package buffer
