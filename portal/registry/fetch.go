package registry

import (
	"context"
	"fmt"
	"os"
	"time"

	getter "github.com/hashicorp/go-getter"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "registry").Logger()
}

// FetchDataDir downloads the static data directory (token lists, products,
// analytics) from src into dst.
//
// Params:
//   - src: any go-getter source, e.g. "github.com/org/portal-data//data" or
//     "https://example.com/data.tar.gz". An empty src is a no-op so local-only
//     deployments keep using dst as is.
//   - dst: the local directory the loaders read from
//
// Usage:
//   - Called once on startup before LoadTokenRegistry and LoadCatalog
func FetchDataDir(ctx context.Context, src, dst string) error {
	if src == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	pwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}

	client := getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Pwd:  pwd,
		Mode: getter.ClientModeDir,
		Detectors: []getter.Detector{
			&getter.GitHubDetector{},
			&getter.FileDetector{},
		},
		Getters: map[string]getter.Getter{
			"git":   &getter.GitGetter{},
			"file":  &getter.FileGetter{Copy: true},
			"http":  &getter.HttpGetter{},
			"https": &getter.HttpGetter{},
		},
	}

	log.Info().Str("src", src).Str("dst", dst).Msg("Fetching portal data")
	if err := client.Get(); err != nil {
		return fmt.Errorf("failed to fetch data from %s: %w", src, err)
	}
	return nil
}
