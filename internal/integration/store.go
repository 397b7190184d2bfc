package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/store"
)

// Storage buckets.
const (
	ConfigsBucket      = "tool_configs"
	IntegrationsBucket = "integrations"
)

// Defaults are credentials taken from the environment. Stored configs win.
type Defaults map[string]ToolConfig

// Store persists tool configs and custom integrations.
type Store struct {
	configs      *store.Bucket
	integrations *store.Bucket
	defaults     Defaults
	now          func() time.Time
	logger       zerolog.Logger
}

// NewStore creates an integration store. defaults may be nil.
func NewStore(db *store.Store, defaults Defaults, logger zerolog.Logger) *Store {
	if defaults == nil {
		defaults = Defaults{}
	}
	return &Store{
		configs:      db.Bucket(ConfigsBucket),
		integrations: db.Bucket(IntegrationsBucket),
		defaults:     defaults,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With().Str("component", "integration.store").Logger(),
	}
}

// --- Tool configs ---

func (s *Store) stored(ctx context.Context, service string) (*ToolConfig, error) {
	var c ToolConfig
	if err := s.configs.Get(ctx, service, &c); err != nil {
		if errors.Is(err, perrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Credentials returns the effective config for service: the stored one when
// it is complete, otherwise the environment default. Returns ErrNotConfigured
// when neither is usable.
func (s *Store) Credentials(ctx context.Context, service string) (ToolConfig, error) {
	c, err := s.stored(ctx, service)
	if err != nil {
		return ToolConfig{}, err
	}
	if c != nil && c.Configured() {
		return *c, nil
	}
	if d, ok := s.defaults[service]; ok {
		d.Service = service
		if d.Configured() {
			return d, nil
		}
	}
	return ToolConfig{}, fmt.Errorf("%s: %w", service, perrors.ErrNotConfigured)
}

// Configured reports whether service has usable credentials.
func (s *Store) Configured(ctx context.Context, service string) bool {
	_, err := s.Credentials(ctx, service)
	return err == nil
}

// PutConfig stores credentials for service.
func (s *Store) PutConfig(ctx context.Context, service string, in ConfigInput) (ConfigView, error) {
	if !ValidService(service) {
		return ConfigView{}, perrors.Invalid("unknown service %q", service)
	}
	prev, err := s.stored(ctx, service)
	if err != nil {
		return ConfigView{}, err
	}

	c := ToolConfig{
		Service:    service,
		Token:      strings.TrimSpace(in.Token),
		BaseURL:    strings.TrimRight(strings.TrimSpace(in.BaseURL), "/"),
		Email:      strings.TrimSpace(in.Email),
		DefaultRef: strings.TrimSpace(in.DefaultRef),
		UpdatedAt:  s.now(),
	}
	if c.Token == "" && prev != nil {
		c.Token = prev.Token
	}
	if c.Token == "" {
		return ConfigView{}, perrors.Invalid("token is required")
	}
	if c.BaseURL != "" {
		if err := checkURL(c.BaseURL); err != nil {
			return ConfigView{}, err
		}
	}
	if service == ServiceJira && (c.BaseURL == "" || c.Email == "") {
		return ConfigView{}, perrors.Invalid("jira requires baseUrl and email")
	}

	if err := s.configs.Put(ctx, service, c); err != nil {
		return ConfigView{}, err
	}
	s.logger.Info().Str("service", service).Msg("tool config saved")
	return view(c, SourceStored), nil
}

// DeleteConfig removes stored credentials. Environment defaults still apply.
func (s *Store) DeleteConfig(ctx context.Context, service string) error {
	if !ValidService(service) {
		return perrors.Invalid("unknown service %q", service)
	}
	ok, err := s.configs.Delete(ctx, service)
	if err != nil {
		return err
	}
	if !ok {
		return perrors.NotFound("tool config", service)
	}
	return nil
}

// GetConfig returns the masked effective config for service.
func (s *Store) GetConfig(ctx context.Context, service string) (ConfigView, error) {
	if !ValidService(service) {
		return ConfigView{}, perrors.Invalid("unknown service %q", service)
	}
	c, err := s.stored(ctx, service)
	if err != nil {
		return ConfigView{}, err
	}
	if c != nil && c.Configured() {
		return view(*c, SourceStored), nil
	}
	if d, ok := s.defaults[service]; ok {
		d.Service = service
		if d.Configured() {
			return view(d, SourceEnv), nil
		}
	}
	if c != nil {
		return view(*c, SourceStored), nil
	}
	return ConfigView{Service: service, Source: SourceNone}, nil
}

// ListConfigs returns the masked effective config of every service.
func (s *Store) ListConfigs(ctx context.Context) ([]ConfigView, error) {
	out := make([]ConfigView, 0, len(Services))
	for _, svc := range Services {
		v, err := s.GetConfig(ctx, svc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func view(c ToolConfig, source string) ConfigView {
	v := ConfigView{
		Service:     c.Service,
		Configured:  c.Configured(),
		Source:      source,
		TokenMasked: Mask(c.Token),
		BaseURL:     c.BaseURL,
		Email:       c.Email,
		DefaultRef:  c.DefaultRef,
	}
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}

// --- Custom integrations ---

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{0,39}$`)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return perrors.Invalid("baseUrl %q must be an absolute http(s) URL", raw)
	}
	return nil
}

func (s *Store) validateIntegration(in IntegrationInput) (IntegrationInput, error) {
	in.Name = strings.ToLower(strings.TrimSpace(in.Name))
	if !namePattern.MatchString(in.Name) {
		return in, perrors.Invalid("name %q must be lowercase letters, digits or underscores", in.Name)
	}
	in.BaseURL = strings.TrimSpace(in.BaseURL)
	if err := checkURL(in.BaseURL); err != nil {
		return in, err
	}
	in.Method = strings.ToUpper(strings.TrimSpace(in.Method))
	if in.Method == "" {
		in.Method = http.MethodGet
	}
	if !allowedMethods[in.Method] {
		return in, perrors.Invalid("method %q is not supported", in.Method)
	}
	in.Description = strings.TrimSpace(in.Description)
	return in, nil
}

func (s *Store) nameTaken(ctx context.Context, name, exceptID string) (bool, error) {
	all, err := s.ListIntegrations(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range all {
		if c.Name == name && c.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

// CreateIntegration validates and stores a custom integration.
func (s *Store) CreateIntegration(ctx context.Context, in IntegrationInput) (*CustomIntegration, error) {
	in, err := s.validateIntegration(in)
	if err != nil {
		return nil, err
	}
	taken, err := s.nameTaken(ctx, in.Name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: integration %q", perrors.ErrConflict, in.Name)
	}

	now := s.now()
	c := &CustomIntegration{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		BaseURL:     in.BaseURL,
		Method:      in.Method,
		Headers:     in.Headers,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.integrations.Put(ctx, c.ID, c); err != nil {
		return nil, err
	}
	s.logger.Info().Str("integration", c.Name).Msg("custom integration created")
	return c, nil
}

// UpdateIntegration replaces a custom integration's definition.
func (s *Store) UpdateIntegration(ctx context.Context, id string, in IntegrationInput) (prev, next *CustomIntegration, err error) {
	prev, err = s.GetIntegration(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	in, err = s.validateIntegration(in)
	if err != nil {
		return nil, nil, err
	}
	taken, err := s.nameTaken(ctx, in.Name, id)
	if err != nil {
		return nil, nil, err
	}
	if taken {
		return nil, nil, fmt.Errorf("%w: integration %q", perrors.ErrConflict, in.Name)
	}

	next = &CustomIntegration{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		BaseURL:     in.BaseURL,
		Method:      in.Method,
		Headers:     in.Headers,
		CreatedAt:   prev.CreatedAt,
		UpdatedAt:   s.now(),
	}
	if err := s.integrations.Put(ctx, id, next); err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}

// GetIntegration returns a custom integration by id.
func (s *Store) GetIntegration(ctx context.Context, id string) (*CustomIntegration, error) {
	var c CustomIntegration
	if err := s.integrations.Get(ctx, id, &c); err != nil {
		if errors.Is(err, perrors.ErrNotFound) {
			return nil, perrors.NotFound("integration", id)
		}
		return nil, err
	}
	return &c, nil
}

// ListIntegrations returns all custom integrations sorted by name.
func (s *Store) ListIntegrations(ctx context.Context) ([]*CustomIntegration, error) {
	list, err := store.List[*CustomIntegration](ctx, s.integrations, "")
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// DeleteIntegration removes a custom integration and returns what was removed.
func (s *Store) DeleteIntegration(ctx context.Context, id string) (*CustomIntegration, error) {
	c, err := s.GetIntegration(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.integrations.Delete(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}
