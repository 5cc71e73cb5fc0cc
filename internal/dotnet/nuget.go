package dotnet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultNuGetURL is the NuGet v3 flat container endpoint.
const DefaultNuGetURL = "https://api.nuget.org/v3-flatcontainer"

// NuGetResolver looks up the latest stable package versions. Results,
// including failed lookups, are cached for the resolver's lifetime.
type NuGetResolver struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	mu    sync.RWMutex
	cache map[string]string // "" marks an unresolved package
	group singleflight.Group
}

// NewNuGetResolver creates a resolver against baseURL.
func NewNuGetResolver(baseURL string, timeout time.Duration, log zerolog.Logger) *NuGetResolver {
	if baseURL == "" {
		baseURL = DefaultNuGetURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NuGetResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "nuget").Logger(),
		cache:   make(map[string]string),
	}
}

// Latest returns the newest stable version of name. Missing packages,
// HTTP errors and network failures all report false.
func (r *NuGetResolver) Latest(ctx context.Context, name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", false
	}

	r.mu.RLock()
	v, cached := r.cache[key]
	r.mu.RUnlock()
	if cached {
		return v, v != ""
	}

	res, _, _ := r.group.Do(key, func() (any, error) {
		v, err := r.fetch(ctx, key)
		if err != nil {
			r.log.Debug().Err(err).Str("package", name).Msg("nuget lookup failed")
			if ctx.Err() != nil {
				return "", nil
			}
		}
		r.mu.Lock()
		r.cache[key] = v
		r.mu.Unlock()
		return v, nil
	})
	v = res.(string)
	return v, v != ""
}

func (r *NuGetResolver) fetch(ctx context.Context, key string) (string, error) {
	u := fmt.Sprintf("%s/%s/index.json", r.baseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nuget returned %s", resp.Status)
	}

	var index struct {
		Versions []string `json:"versions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return "", fmt.Errorf("decoding version index: %w", err)
	}
	return latestStable(index.Versions), nil
}

// latestStable returns the last version without a pre-release marker.
// The flat container lists versions in ascending order.
func latestStable(versions []string) string {
	for i := len(versions) - 1; i >= 0; i-- {
		if !strings.Contains(versions[i], "-") {
			return versions[i]
		}
	}
	return ""
}
