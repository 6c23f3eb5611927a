package avatar

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/chorechart/internal/model"
)

const (
	DefaultPrefix   = "/avatars/"
	DefaultFallback = "/avatars/avatar1.svg"
)

var assetIDRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,254}$`)

// AssetURLResolver turns an uploaded asset id into a displayable URL.
type AssetURLResolver interface {
	ResolveAssetURL(ctx context.Context, assetID string) (string, error)
}

// ResolutionError is an asset lookup that failed. Resolve never returns it;
// it is logged and the fallback is used instead.
type ResolutionError struct {
	AssetID string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve asset %q: %v", e.AssetID, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

type Config struct {
	// Prefix marks built-in avatar paths.
	Prefix string
	// Fallback is returned when nothing else resolves.
	Fallback string
}

type Resolver struct {
	assets   AssetURLResolver
	prefix   string
	fallback string
	logger   *slog.Logger
}

// Resolution is the display photo of one kid.
type Resolution struct {
	KidID int64  `json:"kid_id"`
	URL   string `json:"url"`
}

// NewResolver builds a Resolver. assets may be nil when no asset store is
// configured; uploaded photos then resolve to the fallback.
func NewResolver(cfg Config, assets AssetURLResolver, logger *slog.Logger) *Resolver {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Fallback == "" {
		cfg.Fallback = DefaultFallback
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{assets: assets, prefix: cfg.Prefix, fallback: cfg.Fallback, logger: logger}
}

func (r *Resolver) Fallback() string {
	return r.fallback
}

// IsBuiltin reports whether ref points at one of the built-in avatars.
func (r *Resolver) IsBuiltin(ref string) bool {
	return strings.HasPrefix(ref, r.prefix)
}

// Resolve returns a usable photo URL for kid. Order: built-in avatar path,
// then uploaded asset, then the fallback.
func (r *Resolver) Resolve(ctx context.Context, kid model.Kid) string {
	if kid.IsDefaultAvatar || r.IsBuiltin(kid.PhotoRef) {
		if kid.PhotoRef == "" {
			return r.fallback
		}
		return kid.PhotoRef
	}
	if kid.PhotoRef == "" {
		return r.fallback
	}

	url, err := r.lookup(ctx, kid.PhotoRef)
	if err != nil {
		r.logger.Warn("kid photo fell back to default", "kid_id", kid.ID, "error", err)
		return r.fallback
	}
	return url
}

// ResolveAll resolves every kid concurrently, preserving order.
func (r *Resolver) ResolveAll(ctx context.Context, kids []model.Kid) []Resolution {
	out := make([]Resolution, len(kids))
	var g errgroup.Group
	g.SetLimit(8)
	for i, k := range kids {
		g.Go(func() error {
			out[i] = Resolution{KidID: k.ID, URL: r.Resolve(ctx, k)}
			return nil
		})
	}
	g.Wait()
	return out
}

func (r *Resolver) lookup(ctx context.Context, assetID string) (url string, err error) {
	if r.assets == nil {
		return "", &ResolutionError{AssetID: assetID, Err: fmt.Errorf("no asset store configured")}
	}
	if !assetIDRegexp.MatchString(assetID) || strings.Contains(assetID, "..") {
		return "", &ResolutionError{AssetID: assetID, Err: fmt.Errorf("malformed asset id")}
	}
	defer func() {
		if rec := recover(); rec != nil {
			url = ""
			err = &ResolutionError{AssetID: assetID, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	url, err = r.assets.ResolveAssetURL(ctx, assetID)
	if err != nil {
		return "", &ResolutionError{AssetID: assetID, Err: err}
	}
	if url == "" {
		return "", &ResolutionError{AssetID: assetID, Err: fmt.Errorf("empty url")}
	}
	return url, nil
}

// NormalizeSelection settles the photo fields for a new or edited kid. A kid
// saved with neither an uploaded asset nor a built-in avatar gets the
// fallback avatar recorded as a built-in selection.
func (r *Resolver) NormalizeSelection(photoRef string, isDefault bool) (string, bool) {
	photoRef = strings.TrimSpace(photoRef)
	switch {
	case photoRef == "":
		return r.fallback, true
	case isDefault || r.IsBuiltin(photoRef):
		return photoRef, true
	default:
		return photoRef, false
	}
}
