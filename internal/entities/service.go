package entities

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hadmean/hadmean/internal/request"
)

// App config keys.
const (
	ConfigDisabledEntities = "disabled_entities"
	ConfigEntitySelections = "entity_selections"
)

// SchemaPort introspects the database schema.
type SchemaPort interface {
	Columns(ctx context.Context) ([]Column, error)
	Enums(ctx context.Context) (map[string][]string, error)
}

// AppConfigPort reads dashboard settings.
type AppConfigPort interface {
	Get(ctx context.Context, key string, dst any) error
}

// Service answers entity questions from a schema snapshot loaded once.
type Service struct {
	schema SchemaPort
	config AppConfigPort

	group    singleflight.Group
	mu       sync.RWMutex
	snapshot map[string]Entity
}

// NewService constructs a Service.
func NewService(schema SchemaPort, config AppConfigPort) *Service {
	return &Service{schema: schema, config: config}
}

// entities returns the snapshot, loading it on first use. Concurrent first
// callers share one load; failed loads are not kept.
func (s *Service) entities(ctx context.Context) (map[string]Entity, error) {
	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()
	if snapshot != nil {
		return snapshot, nil
	}
	v, err, _ := s.group.Do("schema", func() (interface{}, error) {
		loaded, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.snapshot = loaded
		s.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]Entity), nil
}

func (s *Service) load(ctx context.Context) (map[string]Entity, error) {
	columns, err := s.schema.Columns(ctx)
	if err != nil {
		return nil, err
	}
	enums, err := s.schema.Enums(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Entity)
	for _, c := range columns {
		e, ok := out[c.Table]
		if !ok {
			e = Entity{Slug: c.Table, Label: humanize(c.Table)}
		}
		field := Field{
			Name:     c.Name,
			Label:    humanize(c.Name),
			Type:     fieldType(c, enums),
			Required: !c.Nullable && !c.Default,
		}
		if field.Type == FieldSelectionEnum {
			field.EnumOptions = enums[c.UDTName]
		}
		e.Fields = append(e.Fields, field)
		out[c.Table] = e
	}
	return out, nil
}

func fieldType(c Column, enums map[string][]string) FieldType {
	if _, ok := enums[c.UDTName]; ok {
		return FieldSelectionEnum
	}
	switch dt := strings.ToLower(c.DataType); {
	case dt == "boolean":
		return FieldBoolean
	case dt == "smallint", dt == "integer", dt == "bigint", dt == "numeric", dt == "real", dt == "double precision":
		return FieldNumber
	case dt == "date", strings.HasPrefix(dt, "timestamp"), strings.HasPrefix(dt, "time"):
		return FieldDateTime
	case dt == "json", dt == "jsonb":
		return FieldJSON
	}
	return FieldText
}

func (s *Service) disabled(ctx context.Context) (map[string]struct{}, error) {
	var slugs []string
	if err := s.config.Get(ctx, ConfigDisabledEntities, &slugs); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	out := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		out[slug] = struct{}{}
	}
	return out, nil
}

// Find returns one entity.
func (s *Service) Find(ctx context.Context, slug string) (Entity, error) {
	all, err := s.entities(ctx)
	if err != nil {
		return Entity{}, err
	}
	e, ok := all[slug]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return e, nil
}

// List returns every entity sorted by slug.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	all, err := s.entities(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(all))
	for _, e := range all {
		out = append(out, Summary{Slug: e.Slug, Label: e.Label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// ListActive returns the entities that are not disabled.
func (s *Service) ListActive(ctx context.Context) ([]Summary, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	disabled, err := s.disabled(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if _, off := disabled[e.Slug]; !off {
			out = append(out, e)
		}
	}
	return out, nil
}

// Status implements request.EntityLookup.
func (s *Service) Status(ctx context.Context, slug string) (request.EntityStatus, error) {
	all, err := s.entities(ctx)
	if err != nil {
		return request.EntityMissing, err
	}
	if _, ok := all[slug]; !ok {
		return request.EntityMissing, nil
	}
	disabled, err := s.disabled(ctx)
	if err != nil {
		return request.EntityMissing, err
	}
	if _, off := disabled[slug]; off {
		return request.EntityDisabled, nil
	}
	return request.EntityEnabled, nil
}

// Selections returns the options of a field, merging configured
// preselections with what the schema knows.
func (s *Service) Selections(ctx context.Context, slug, field string) ([]Option, error) {
	e, err := s.Find(ctx, slug)
	if err != nil {
		return nil, err
	}
	f, ok := e.Field(field)
	if !ok {
		return nil, ErrNotFound
	}
	var configured map[string]map[string][]Option
	if err := s.config.Get(ctx, ConfigEntitySelections, &configured); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	preselected := configured[slug][field]
	fieldType := f.Type
	if fieldType != FieldBoolean && fieldType != FieldSelectionEnum && len(preselected) > 0 {
		fieldType = FieldSelection
	}
	return SelectionOptions(fieldType, preselected, f.EnumOptions), nil
}

var _ request.EntityLookup = (*Service)(nil)
