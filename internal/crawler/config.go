package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PartitionPlaceholder is replaced by the partition ID in CatalogConfig.IndexPath.
const PartitionPlaceholder = "{partition}"

// CatalogConfig describes which index pages make up a crawl.
type CatalogConfig struct {
	BaseURL   string
	IndexPath string
	From      int
	To        int
}

// Validate checks for obviously bad catalog definitions.
func (c CatalogConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("crawl.base_url must be set")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("crawl.base_url %q must be an absolute URL", c.BaseURL)
	}
	if !strings.Contains(c.IndexPath, PartitionPlaceholder) {
		return fmt.Errorf("crawl.index_path must contain %s", PartitionPlaceholder)
	}
	if c.From <= 0 || c.To <= 0 {
		return errors.New("crawl.from and crawl.to must be > 0")
	}
	return nil
}

// Partitions expands the inclusive range From..To into catalog partitions, walking
// from From towards To so a descending range crawls newest first.
func (c CatalogConfig) Partitions() ([]CatalogPartition, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	step := 1
	if c.From > c.To {
		step = -1
	}
	count := (c.To-c.From)*step + 1
	partitions := make([]CatalogPartition, 0, count)
	base := strings.TrimRight(c.BaseURL, "/")
	for id := c.From; ; id += step {
		path := strings.ReplaceAll(c.IndexPath, PartitionPlaceholder, strconv.Itoa(id))
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		partitions = append(partitions, CatalogPartition{ID: id, IndexURL: base + path})
		if id == c.To {
			break
		}
	}
	return partitions, nil
}
