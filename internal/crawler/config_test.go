package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalogConfigPartitions(t *testing.T) {
	t.Parallel()

	cfg := CatalogConfig{BaseURL: "https://papers.nips.cc/", IndexPath: "/paper/{partition}", From: 2021, To: 2019}
	partitions, err := cfg.Partitions()
	require.NoError(t, err)
	require.Equal(t, []CatalogPartition{
		{ID: 2021, IndexURL: "https://papers.nips.cc/paper/2021"},
		{ID: 2020, IndexURL: "https://papers.nips.cc/paper/2020"},
		{ID: 2019, IndexURL: "https://papers.nips.cc/paper/2019"},
	}, partitions)

	cfg.From, cfg.To = 2020, 2021
	partitions, err = cfg.Partitions()
	require.NoError(t, err)
	require.Len(t, partitions, 2)
	require.Equal(t, 2020, partitions[0].ID)

	cfg.From, cfg.To = 2021, 2021
	cfg.IndexPath = "proceedings/{partition}/index.html"
	partitions, err = cfg.Partitions()
	require.NoError(t, err)
	require.Equal(t, []CatalogPartition{{ID: 2021, IndexURL: "https://papers.nips.cc/proceedings/2021/index.html"}}, partitions)
}

func TestCatalogConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  CatalogConfig
		want string
	}{
		{name: "missing base", cfg: CatalogConfig{IndexPath: "/{partition}", From: 1, To: 1}, want: "crawl.base_url must be set"},
		{name: "relative base", cfg: CatalogConfig{BaseURL: "papers", IndexPath: "/{partition}", From: 1, To: 1}, want: "absolute URL"},
		{name: "missing placeholder", cfg: CatalogConfig{BaseURL: "https://x", IndexPath: "/paper", From: 1, To: 1}, want: "{partition}"},
		{name: "zero range", cfg: CatalogConfig{BaseURL: "https://x", IndexPath: "/{partition}"}, want: "crawl.from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.cfg.Partitions()
			require.ErrorContains(t, err, tt.want)
		})
	}
}
