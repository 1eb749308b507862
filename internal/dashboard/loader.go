package dashboard

import (
	"context"
	"errors"
	"math"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/users"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/viewmodel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	errMissingSource    = errors.New("dashboard: data source is required")
	errMissingSession   = errors.New("dashboard: session is required")
	errMissingNavigator = errors.New("dashboard: navigator is required")
)

// Source provides the data shown on the overview.
type Source interface {
	Profile(ctx context.Context) (users.Profile, error)
	FetchStats(ctx context.Context) (affiliates.Summary, error)
}

// KPIs are the headline numbers of the overview.
type KPIs struct {
	TotalRevenue     float64
	TotalAffiliates  int64
	ActiveAffiliates int64
	TotalClicks      int64
	// ConversionRate is the mean affiliate conversion rate in percent, rounded to two decimals.
	ConversionRate float64
}

// Overview is the loaded dashboard.
type Overview struct {
	User users.Profile
	KPIs KPIs
	// StatsAvailable is false when the KPIs fell back to zeros.
	StatsAvailable bool
}

// LoaderConfig describes the collaborators of a Loader.
type LoaderConfig struct {
	Source    Source
	Session   viewmodel.SessionGuard
	Navigator viewmodel.Navigator
	Logger    *zap.Logger
}

// Loader fetches the profile and KPIs concurrently.
type Loader struct {
	source    Source
	session   viewmodel.SessionGuard
	navigator viewmodel.Navigator
	logger    *zap.Logger
}

// NewLoader validates the configuration.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	if cfg.Session == nil {
		return nil, errMissingSession
	}
	if cfg.Navigator == nil {
		return nil, errMissingNavigator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{source: cfg.Source, session: cfg.Session, navigator: cfg.Navigator, logger: logger}, nil
}

// Load builds the overview. Missing stats degrade to zero KPIs; a rejected session ends it.
// When the profile cannot be fetched for other reasons the stored profile is shown instead.
func (l *Loader) Load(ctx context.Context) (Overview, error) {
	if !l.session.IsAuthenticated() {
		l.navigator.Redirect(viewmodel.LoginRoute)
		return Overview{}, viewmodel.ErrNotAuthenticated
	}

	var overview Overview
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		profile, err := l.source.Profile(groupCtx)
		if err == nil {
			overview.User = profile
			return nil
		}
		if affiliates.IsUnauthorized(err) {
			return err
		}
		l.logger.Warn("profile unavailable, using stored profile", zap.Error(err))
		overview.User, _ = l.session.CurrentUser()
		return nil
	})

	group.Go(func() error {
		summary, err := l.source.FetchStats(groupCtx)
		if err != nil {
			if affiliates.IsUnauthorized(err) {
				return err
			}
			l.logger.Info("affiliate stats unavailable", zap.Error(err))
			return nil
		}
		overview.KPIs = kpisFromSummary(summary)
		overview.StatsAvailable = true
		return nil
	})

	if err := group.Wait(); err != nil {
		l.session.Invalidate()
		l.navigator.Redirect(viewmodel.LoginRoute)
		return Overview{}, err
	}
	return overview, nil
}

func kpisFromSummary(summary affiliates.Summary) KPIs {
	return KPIs{
		TotalRevenue:     summary.TotalRevenue,
		TotalAffiliates:  summary.TotalAffiliates,
		ActiveAffiliates: summary.ActiveAffiliates,
		TotalClicks:      summary.TotalClicks,
		ConversionRate:   math.Round(summary.AverageConversionRate*100) / 100,
	}
}
