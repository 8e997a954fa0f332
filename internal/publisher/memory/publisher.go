// Package memory keeps download notices in process so dry runs and tests can
// see what would have gone to Pub/Sub.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
)

// Publisher is a crawler.Publisher that files each DownloadNotice under its
// topic instead of sending it anywhere.
type Publisher struct {
	mu      sync.RWMutex
	seq     int
	byTopic map[string][]crawler.DownloadNotice
}

var _ crawler.Publisher = (*Publisher)(nil)

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{byTopic: make(map[string][]crawler.DownloadNotice)}
}

// Publish files the notice under topic and returns a sequential ID. Only
// DownloadNotice values (or pointers to them) are accepted.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish canceled: %w", err)
	}
	var notice crawler.DownloadNotice
	switch v := payload.(type) {
	case crawler.DownloadNotice:
		notice = v
	case *crawler.DownloadNotice:
		if v == nil {
			return "", fmt.Errorf("publish to %q: nil notice", topic)
		}
		notice = *v
	default:
		return "", fmt.Errorf("publish to %q: unsupported payload %T", topic, payload)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTopic[topic] = append(p.byTopic[topic], notice)
	p.seq++
	return fmt.Sprintf("memory-%d", p.seq), nil
}

// Notices returns a copy of the notices published to topic, oldest first.
func (p *Publisher) Notices(topic string) []crawler.DownloadNotice {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]crawler.DownloadNotice(nil), p.byTopic[topic]...)
}

// NoticeFor returns the latest notice published to topic for a stored key.
func (p *Publisher) NoticeFor(topic, key string) (crawler.DownloadNotice, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	notices := p.byTopic[topic]
	for i := len(notices) - 1; i >= 0; i-- {
		if notices[i].Key == key {
			return notices[i], true
		}
	}
	return crawler.DownloadNotice{}, false
}
