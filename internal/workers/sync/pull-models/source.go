// internal/workers/sync/pull-models/source.go
package pullmodels

import (
	"context"
	"fmt"
	"strings"

	httpclient "survey-sync/internal/common/http"
	"survey-sync/internal/common/validation"
	"survey-sync/internal/models"
)

// RemoteSource is where reference collections are downloaded from.
type RemoteSource interface {
	// FetchMeta returns the staleness descriptor of a collection, nil when
	// the source does not publish one.
	FetchMeta(ctx context.Context, name string) (*models.CollectionMeta, error)
	FetchCollection(ctx context.Context, name string) (models.Collection, error)
	// Versioned is false for sources without descriptors; their
	// collections are downloaded on every online pull.
	Versioned() bool
}

type Fetcher interface {
	GetJSON(ctx context.Context, url string, out interface{}) error
}

// StaticSource reads {base}{name}.json and {base}{name}.meta.json from a
// static asset host.
type StaticSource struct {
	client  Fetcher
	baseURL string
}

func NewStaticSource(client Fetcher, baseURL string) *StaticSource {
	return &StaticSource{client: client, baseURL: baseURL}
}

func (s *StaticSource) url(file string) string {
	return strings.TrimRight(s.baseURL, "/") + "/" + file
}

func (s *StaticSource) FetchMeta(ctx context.Context, name string) (*models.CollectionMeta, error) {
	var doc map[string]interface{}
	if err := s.client.GetJSON(ctx, s.url(MetaDocument(name)), &doc); err != nil {
		return nil, err
	}
	if res := validation.ValidateCollectionMeta(doc); !res.Valid {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMeta, name, res.Error())
	}
	creacion, _ := doc["fecha_creacion"].(string)
	modificacion, _ := doc["fecha_modificacion"].(string)
	return &models.CollectionMeta{FechaCreacion: creacion, FechaModificacion: modificacion}, nil
}

func (s *StaticSource) FetchCollection(ctx context.Context, name string) (models.Collection, error) {
	rows := models.Collection{}
	if err := s.client.GetJSON(ctx, s.url(DataDocument(name)), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *StaticSource) Versioned() bool { return true }

// APISource reads GET {base}/{name} from the REST API. The base URL is
// resolved on every call so a newly saved setting takes effect.
type APISource struct {
	client  Fetcher
	baseURL func() string
}

func NewAPISource(client Fetcher, baseURL func() string) *APISource {
	return &APISource{client: client, baseURL: baseURL}
}

func (a *APISource) FetchMeta(context.Context, string) (*models.CollectionMeta, error) {
	return nil, nil
}

func (a *APISource) FetchCollection(ctx context.Context, name string) (models.Collection, error) {
	base := a.baseURL()
	if base == "" {
		return nil, fmt.Errorf("no api base url configured")
	}
	rows := models.Collection{}
	if err := a.client.GetJSON(ctx, httpclient.JoinURL(base, name), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (a *APISource) Versioned() bool { return false }
