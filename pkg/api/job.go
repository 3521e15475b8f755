package api

import (
	"fmt"
	"time"
)

// Document is the untyped shape of a persisted record.
type Document = map[string]any

// Field names of a job record.
const (
	FieldType          = "type"
	FieldData          = "data"
	FieldEncryptedData = "encryptedData"
	FieldEncryptedKey  = "encryptedKey"
	FieldAttempts      = "attempts"
)

// Job is the unit of work moved through a queue.
//
// EncryptedData and EncryptedKey are either both set or both empty.
type Job struct {
	// ID is the record ID the job was stored under. It is not persisted
	// inside the document itself.
	ID   string
	Type string
	Data map[string]any

	EncryptedData []byte
	EncryptedKey  []byte

	// Attempts counts failed deliveries so far. Maintained by the provider.
	Attempts int
}

// Encrypted reports whether the job carries a sealed sensitive fragment.
func (j *Job) Encrypted() bool {
	return len(j.EncryptedData) > 0 && len(j.EncryptedKey) > 0
}

// ClearEncrypted drops the sealed fragment from the job.
func (j *Job) ClearEncrypted() {
	j.EncryptedData = nil
	j.EncryptedKey = nil
}

// Document converts the job into its persisted form.
func (j *Job) Document() Document {
	doc := Document{
		FieldType: j.Type,
		FieldData: j.Data,
	}
	if j.Data == nil {
		doc[FieldData] = map[string]any{}
	}
	if j.Encrypted() {
		doc[FieldEncryptedData] = j.EncryptedData
		doc[FieldEncryptedKey] = j.EncryptedKey
	}
	if j.Attempts > 0 {
		doc[FieldAttempts] = j.Attempts
	}
	return doc
}

// JobFromDocument rebuilds a job from a persisted record.
func JobFromDocument(id string, doc Document) (*Job, error) {
	if doc == nil {
		return nil, fmt.Errorf("job %s: empty document", id)
	}
	typ, ok := doc[FieldType].(string)
	if !ok || typ == "" {
		return nil, fmt.Errorf("job %s: missing %q", id, FieldType)
	}

	j := &Job{ID: id, Type: typ}

	switch data := doc[FieldData].(type) {
	case nil:
		j.Data = map[string]any{}
	case map[string]any:
		j.Data = cloneMap(data)
	default:
		return nil, fmt.Errorf("job %s: %q has unexpected type %T", id, FieldData, data)
	}

	encData := bytesField(doc[FieldEncryptedData])
	encKey := bytesField(doc[FieldEncryptedKey])
	if len(encData) > 0 && len(encKey) > 0 {
		j.EncryptedData = encData
		j.EncryptedKey = encKey
	}

	j.Attempts = toInt(doc[FieldAttempts])
	return j, nil
}

// bytesField accepts binary fields stored either as bytes or as raw strings.
func bytesField(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		return nil
	}
}

// cloneMap copies m and every nested map and slice, so a job never shares
// mutable state with the record it was read from.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// TrackingEvent is emitted once per completed job.
type TrackingEvent struct {
	EventName  string
	HappenedAt time.Time
	EventData  TrackingEventData

	JobType string
	Failed  bool
}

// TrackingEventData holds the measured values of a TrackingEvent.
type TrackingEventData struct {
	// JobCompletionTime is the time in milliseconds between handing the job
	// to the processor and the processor calling complete.
	JobCompletionTime int64
}

// CompletedEventName returns the tracking event name for a job type.
func CompletedEventName(jobType string) string {
	return jobType + "-job-completed"
}

// Document converts the event into its persisted form.
func (e TrackingEvent) Document() Document {
	return Document{
		"eventName":  e.EventName,
		"happenedAt": e.HappenedAt.UTC().Format(time.RFC3339Nano),
		"eventData": map[string]any{
			"jobCompletionTime": e.EventData.JobCompletionTime,
		},
	}
}
