package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart       Stage = "RUN_START"
	StageRunDone        Stage = "RUN_DONE"
	StageRunTimeout     Stage = "RUN_TIMEOUT"
	StagePartitionStart Stage = "PARTITION_START"
	StagePartitionDone  Stage = "PARTITION_DONE"
	StagePartitionError Stage = "PARTITION_ERROR"
	StageItemStart      Stage = "ITEM_START"
	StageItemDone       Stage = "ITEM_DONE"
	StageItemNoTargets  Stage = "ITEM_NO_TARGETS"
	StageItemError      Stage = "ITEM_ERROR"
	StageDownloadDone   Stage = "DOWNLOAD_DONE"
	StageDownloadError  Stage = "DOWNLOAD_ERROR"
)

// Event captures a single component of harvest progress.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Partition is the catalog partition (year) the event belongs to.
	Partition int
	// Title is the raw item title for item and download events.
	Title string
	// URL is the page or document URL; it should not contain credentials.
	URL string
	// Key is the result key recorded for download events.
	Key string
	// Site optionally scopes download events to a host label.
	Site string
	// Bytes carries the stored document size.
	Bytes int64
	// Items counts discovered items on partition completion.
	Items int
	// Dur captures execution latency.
	Dur time.Duration
	// Kind classifies a download failure, e.g. "no_content" or "status".
	Kind string
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunTimeout:
	case StagePartitionStart, StagePartitionDone, StagePartitionError:
		if e.Partition == 0 {
			return errors.New("partition events require a partition")
		}
	case StageItemStart, StageItemDone, StageItemNoTargets, StageItemError:
		if e.Title == "" && e.URL == "" {
			return errors.New("item events require a title or url")
		}
	case StageDownloadDone, StageDownloadError:
		if e.URL == "" {
			return errors.New("download events require a url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
