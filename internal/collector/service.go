package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/devpulse-io/devpulse/internal/domain"
	apperrors "github.com/devpulse-io/devpulse/internal/errors"
)

// MemberLister resolves team rosters to identities for member scoping
type MemberLister interface {
	Members(ctx context.Context, org string, teams []string) ([]domain.Member, error)
}

// RunParams describes one engine run
type RunParams struct {
	Org        string
	Teams      []string
	JiraUnits  []string // saved filter ids or project keys
	Window     domain.DateWindow
	Members    []string // explicit identities, overrides team resolution
	IncludeAux bool
}

// Service is the engine's front door: it resolves working sets, fans
// collection out across units, and assembles the run trace. It decides
// nothing about persistence; the run's Reliable flag tells the caller
// whether the result is worth caching.
type Service struct {
	resolver   *Resolver
	fanout     *FanOut
	collectors map[domain.SourceKind]SourceCollector
	members    MemberLister
	log        *slog.Logger

	now func() time.Time
}

// NewService wires the engine together. members may be nil when no
// identity directory is available; collectors register by source.
func NewService(resolver *Resolver, fanout *FanOut, members MemberLister, log *slog.Logger, collectors ...SourceCollector) *Service {
	bySource := make(map[domain.SourceKind]SourceCollector, len(collectors))
	for _, c := range collectors {
		bySource[c.Source()] = c
	}
	return &Service{
		resolver:   resolver,
		fanout:     fanout,
		collectors: bySource,
		members:    members,
		log:        log,
		now:        time.Now,
	}
}

// Run performs one collection run across every registered source
func (s *Service) Run(ctx context.Context, params RunParams) (domain.RecordBundle, *domain.CollectionRun, error) {
	startedAt := s.now()

	requests, err := s.buildRequests(ctx, params)
	if err != nil {
		return domain.RecordBundle{}, nil, err
	}
	if len(requests) == 0 {
		return domain.RecordBundle{}, nil, apperrors.NewInvalidInputError("nothing to collect: no repositories or issue units in scope")
	}

	bundle, status := s.fanout.CollectMany(ctx, requests, s.collect)

	run := &domain.CollectionRun{
		ID:         uuid.NewString(),
		Org:        params.Org,
		Window:     params.Window,
		StartedAt:  startedAt,
		FinishedAt: s.now(),
		Status:     status,
		Reliable:   !status.Unreliable(),
	}
	if !run.Reliable {
		s.log.Warn("run is unreliable, callers should not cache it",
			"run_id", run.ID,
			"failed", len(status.Failed),
			"successful", len(status.Successful),
		)
	}
	return bundle, run, nil
}

// buildRequests resolves each source's working set into collection
// requests. One source failing to resolve only fails the run when no
// other source produced units.
func (s *Service) buildRequests(ctx context.Context, params RunParams) ([]domain.CollectionRequest, error) {
	var requests []domain.CollectionRequest
	var resolveErr error

	if _, ok := s.collectors[domain.SourceGitHub]; ok {
		units, err := s.resolver.Resolve(ctx, Scope{
			Source: domain.SourceGitHub,
			Org:    params.Org,
			Teams:  params.Teams,
		})
		if err != nil {
			resolveErr = err
			s.log.Warn("repository resolution failed", "org", params.Org, "error", err)
		} else {
			members := s.githubMembers(ctx, params)
			for _, unit := range units {
				requests = append(requests, domain.CollectionRequest{
					Source:     domain.SourceGitHub,
					Unit:       unit,
					Window:     params.Window,
					Members:    members,
					IncludeAux: params.IncludeAux,
				})
			}
		}
	}

	if _, ok := s.collectors[domain.SourceJira]; ok {
		for _, unit := range params.JiraUnits {
			requests = append(requests, domain.CollectionRequest{
				Source:     domain.SourceJira,
				Unit:       unit,
				Window:     params.Window,
				Members:    params.Members,
				IncludeAux: params.IncludeAux,
			})
		}
	}

	if len(requests) == 0 && resolveErr != nil {
		return nil, resolveErr
	}
	return requests, nil
}

// githubMembers picks the identity set for GitHub member scoping:
// explicit identities win; otherwise team rosters resolve through the
// directory. Roster failures degrade to unscoped collection.
func (s *Service) githubMembers(ctx context.Context, params RunParams) []string {
	if len(params.Members) > 0 {
		return params.Members
	}
	if len(params.Teams) == 0 || s.members == nil {
		return nil
	}
	roster, err := s.members.Members(ctx, params.Org, params.Teams)
	if err != nil {
		s.log.Warn("team roster lookup failed, collecting unscoped", "org", params.Org, "error", err)
		return nil
	}
	logins := make([]string, 0, len(roster))
	for _, m := range roster {
		logins = append(logins, m.Username)
	}
	return logins
}

func (s *Service) collect(ctx context.Context, req domain.CollectionRequest) (domain.RecordBundle, error) {
	col, ok := s.collectors[req.Source]
	if !ok {
		return domain.RecordBundle{}, apperrors.NewInternalError(fmt.Sprintf("no collector registered for source %s", req.Source), nil)
	}
	return col.Collect(ctx, req)
}
