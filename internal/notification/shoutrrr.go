package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"regexp"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/civicwatch/alertwatch/internal/errors"
)

// ShoutrrrProvider sends via nicholas-fedor/shoutrrr.
// It creates a single sender for all of its URLs.
type ShoutrrrProvider struct {
	name    string
	urls    []string
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrProvider builds a provider for the given service URLs. It
// fails when no URL is given or a URL cannot be parsed by shoutrrr.
func NewShoutrrrProvider(name string, urls []string, timeout time.Duration) (*ShoutrrrProvider, error) {
	sp := &ShoutrrrProvider{
		name:    strings.TrimSpace(name),
		urls:    slices.Clone(urls),
		timeout: timeout,
	}
	if sp.name == "" {
		sp.name = "shoutrrr"
	}
	if len(sp.urls) == 0 {
		return nil, providerError(errors.NewStd("at least one URL is required"), sp.name, errors.CategoryConfiguration)
	}

	sender, err := shoutrrr.CreateSender(sp.urls...)
	if err != nil {
		return nil, providerError(sanitize(err), sp.name, errors.CategoryConfiguration)
	}
	if sp.timeout > 0 {
		sender.Timeout = sp.timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	sp.sender = sender
	return sp, nil
}

// Name returns the provider name.
func (s *ShoutrrrProvider) Name() string { return s.name }

// Send delivers the event to every URL. The router applies its own timeout.
func (s *ShoutrrrProvider) Send(_ context.Context, e Event) error {
	params := stypes.Params{}
	params.SetTitle(e.Title())

	for _, err := range s.sender.Send(e.Message(), &params) {
		if err != nil {
			return providerError(sanitize(err), s.name, errors.CategoryIntegration)
		}
	}
	return nil
}

// credentialPattern matches the userinfo and query of service URLs.
var credentialPattern = regexp.MustCompile(`(://)[^@/\s]+@|\?[^\s"]+`)

// sanitize strips credentials that shoutrrr may echo back in error text.
func sanitize(err error) error {
	return errors.NewStd(credentialPattern.ReplaceAllString(err.Error(), "$1"))
}

func providerError(err error, provider string, category errors.ErrorCategory) error {
	return errors.New(fmt.Errorf("%s: %w", provider, err)).
		Component("notification").
		Category(category).
		Context("provider", provider).
		Build()
}
