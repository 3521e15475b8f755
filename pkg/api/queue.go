package api

import "fmt"

// QueueType selects the storage namespace jobs are created under.
type QueueType string

const (
	QueueDefault QueueType = "default"
	QueueSession QueueType = "session"
	QueueFast    QueueType = "fast"
)

var queuePaths = map[QueueType]string{
	QueueDefault: "_queue/task",
	QueueSession: "_sessionQueue/task",
	QueueFast:    "_fastQueue/task",
}

// ParseQueueType validates s. An empty string selects QueueDefault.
func ParseQueueType(s string) (QueueType, error) {
	qt := QueueType(s)
	if err := qt.Validate(); err != nil {
		return "", err
	}
	return qt.normalize(), nil
}

// Validate returns ErrInvalidQueueType for anything but the three known
// queue types and the empty value.
func (q QueueType) Validate() error {
	if _, ok := queuePaths[q.normalize()]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidQueueType, string(q))
	}
	return nil
}

// Path returns the storage namespace for q. It panics on an invalid queue
// type; callers validate at construction time.
func (q QueueType) Path() string {
	p, ok := queuePaths[q.normalize()]
	if !ok {
		panic(fmt.Sprintf("api: invalid queue type %q", string(q)))
	}
	return p
}

func (q QueueType) String() string {
	return string(q.normalize())
}

func (q QueueType) normalize() QueueType {
	if q == "" {
		return QueueDefault
	}
	return q
}
