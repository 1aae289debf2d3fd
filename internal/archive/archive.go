package archive

import (
	"context"

	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/logger"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation
type noopArchive struct{}

func NewService(cfg Config, log logger.Logger) (Archive, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If the archive is disabled, return a no-op archive
	if !cfg.Enabled {
		log.Debug().Msg("Session archive disabled, using no-op archive")
		return &noopArchive{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create archive repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Bool("enabled", cfg.Enabled).
		Msg("Archive service initialized successfully")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Record(ctx context.Context, session *Session) error {
	errFactory := errors.New()

	if session == nil || session.ID == "" {
		return errFactory.New(ErrInvalidSession)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Insert(ctx, session); err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	return nil
}

func (s *service) List(ctx context.Context, limit int) ([]Session, error) {
	return s.repo.List(ctx, limit)
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	return nil
}

// Noop returns an archive that discards everything.
func Noop() Archive {
	return &noopArchive{}
}

func (*noopArchive) Record(_ context.Context, _ *Session) error {
	return nil
}

func (*noopArchive) List(_ context.Context, _ int) ([]Session, error) {
	return nil, nil
}

func (*noopArchive) Close() error {
	return nil
}
