package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/coursefeedback/backend/pkg/errors"
)

// maxConcurrentLookups bounds fan-out of batch lookups against the directory
const maxConcurrentLookups = 8

type courseResponse struct {
	DisplayName string `json:"display_name"`
}

type userResponse struct {
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	ProfileName  string `json:"profile_name"`
	Email        string `json:"email"`
	MobileNumber string `json:"mobile_number"`
}

// HTTPDirectory talks to the course catalog and user directory over HTTP.
// Calls go through a circuit breaker so a failing directory degrades to
// blank fields instead of slowing every export down.
type HTTPDirectory struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

var (
	_ providers.CourseDirectory = (*HTTPDirectory)(nil)
	_ providers.UserDirectory   = (*HTTPDirectory)(nil)
)

// NewHTTPDirectory creates a directory client rooted at baseURL
func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "directory",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
		}),
	}
}

// GetDisplayName returns the display name of a course
func (c *HTTPDirectory) GetDisplayName(ctx context.Context, courseKey string) (string, error) {
	var out courseResponse
	if err := c.get(ctx, "/courses/"+url.PathEscape(courseKey), &out); err != nil {
		return "", err
	}
	return out.DisplayName, nil
}

// GetProfile returns the directory profile of a user
func (c *HTTPDirectory) GetProfile(ctx context.Context, userID string) (*entities.UserProfile, error) {
	var out userResponse
	if err := c.get(ctx, "/users/"+url.PathEscape(userID), &out); err != nil {
		return nil, err
	}

	return &entities.UserProfile{
		UserID:       userID,
		Username:     out.Username,
		FullName:     out.FullName,
		ProfileName:  out.ProfileName,
		Email:        out.Email,
		MobileNumber: out.MobileNumber,
	}, nil
}

// GetDisplayNames looks up each key; failures are logged and left out
func (c *HTTPDirectory) GetDisplayNames(ctx context.Context, courseKeys []string) (map[string]string, error) {
	return fanOut(ctx, courseKeys, c.GetDisplayName), nil
}

// GetProfiles looks up each id; failures are logged and left out
func (c *HTTPDirectory) GetProfiles(ctx context.Context, userIDs []string) (map[string]*entities.UserProfile, error) {
	return fanOut(ctx, userIDs, c.GetProfile), nil
}

func (c *HTTPDirectory) get(ctx context.Context, path string, out interface{}) error {
	found, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doJSON(ctx, http.MethodGet, c.baseURL+path, out)
	})

	switch {
	case err == nil:
		if ok, _ := found.(bool); !ok {
			return apperrors.NewNotFoundError(fmt.Sprintf("directory has no entry at %s", path))
		}
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return apperrors.NewExternalError("directory unavailable", err)
	default:
		return apperrors.NewExternalError(fmt.Sprintf("directory lookup %s failed", path), err)
	}
}

// doJSON reports found=false for a 404 so that missing entries do not count
// against the breaker.
func (c *HTTPDirectory) doJSON(ctx context.Context, method, endpoint string, out interface{}) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

func fanOut[V any](ctx context.Context, keys []string, lookup func(context.Context, string) (V, error)) map[string]V {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxConcurrentLookups)
		out = make(map[string]V, len(keys))
	)

	for _, key := range keys {
		wg.Add(1)
		sem <- struct{}{}
		go func(key string) {
			defer wg.Done()
			defer func() { <-sem }()

			value, err := lookup(ctx, key)
			if err != nil {
				if !apperrors.IsNotFound(err) {
					observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("directory lookup failed")
				}
				return
			}

			mu.Lock()
			out[key] = value
			mu.Unlock()
		}(key)
	}

	wg.Wait()
	return out
}
