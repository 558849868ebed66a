package core

import (
	"fmt"
	"sync"

	"github.com/framewright/provision/contracts"
)

// ProgressBroker fans out the event stream of each in-flight operation.
// Subscribers arriving late receive the most recent event first, so a
// subscription to a finished operation still observes its terminal event.
type ProgressBroker struct {
	mutex   sync.Mutex
	streams map[string]*progressStream
}

type progressStream struct {
	last        *contracts.ProgressEvent
	finished    bool
	subscribers []chan contracts.ProgressEvent
}

func NewProgressBroker() *ProgressBroker {
	return &ProgressBroker{streams: make(map[string]*progressStream)}
}

// Open registers a new operation stream and returns its publisher.
func (this *ProgressBroker) Open(operationID string) *ProgressPublisher {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.streams[operationID] = &progressStream{}
	return &ProgressPublisher{broker: this, operationID: operationID}
}

// Subscribe attaches to an operation's stream. The channel closes after
// the terminal event is delivered.
func (this *ProgressBroker) Subscribe(operationID string) (<-chan contracts.ProgressEvent, error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	stream, found := this.streams[operationID]
	if !found {
		return nil, fmt.Errorf("unknown operation: %q", operationID)
	}

	subscription := make(chan contracts.ProgressEvent, subscriberBuffer)
	if stream.last != nil {
		subscription <- *stream.last
	}
	if stream.finished {
		close(subscription)
		return subscription, nil
	}
	stream.subscribers = append(stream.subscribers, subscription)
	return subscription, nil
}

const subscriberBuffer = 64

func (this *ProgressBroker) publish(operationID string, event contracts.ProgressEvent) {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	stream, found := this.streams[operationID]
	if !found || stream.finished {
		return
	}

	// Percentage never regresses within one operation, whatever the
	// caller computed.
	if stream.last != nil && event.Percentage < stream.last.Percentage {
		event.Percentage = stream.last.Percentage
	}
	snapshot := event
	stream.last = &snapshot

	for _, subscription := range stream.subscribers {
		if event.Terminal {
			// Terminal events must land; evict the oldest buffered
			// event from a slow subscriber to make room.
			select {
			case subscription <- event:
			default:
				select {
				case <-subscription:
				default:
				}
				select {
				case subscription <- event:
				default:
				}
			}
			close(subscription)
			continue
		}
		select {
		case subscription <- event:
		default: // slow subscriber loses intermediate events
		}
	}
	if event.Terminal {
		stream.finished = true
		stream.subscribers = nil
	}
}

// ProgressPublisher is the write side of one operation's stream.
type ProgressPublisher struct {
	broker      *ProgressBroker
	operationID string
}

func (this *ProgressPublisher) Publish(event contracts.ProgressEvent) {
	event.OperationID = this.operationID
	this.broker.publish(this.operationID, event)
}
