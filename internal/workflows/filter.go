package workflows

import (
	"context"
	"io"

	"github.com/PolarWolf314/lockbox/internal/audit"
	"github.com/PolarWolf314/lockbox/internal/backend"
	"github.com/PolarWolf314/lockbox/internal/gitfilter"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
)

// FilterOptions configures the filter workflows. Git runs them from the
// work tree root with the file's repository-relative path.
type FilterOptions struct {
	Path string
	In   io.Reader
	Out  io.Writer

	Backend backend.Backend
	Logger  logger.Logger
}

func (p *project) filter() *gitfilter.Filter {
	return &gitfilter.Filter{
		Store:   p.store,
		Objects: p.objects,
		Crypto:  p.crypto,
		Logger:  p.log,
	}
}

// FilterClean encrypts opts.In to opts.Out for the git clean filter.
// A file seen for the first time becomes tracked.
func FilterClean(ctx context.Context, opts FilterOptions) error {
	p, err := openProject(opts.Backend, opts.Logger)
	if err != nil {
		return err
	}
	rel, err := p.normalizePath(opts.Path)
	if err != nil {
		return err
	}

	res, err := p.filter().Clean(ctx, rel, opts.In, opts.Out)
	if err != nil {
		return err
	}
	if !res.Reused {
		entry := audit.LogWithUser(audit.OpFilterClean)
		entry.Files = []string{rel}
		entry.RecipientVersion = res.RecipientVersion
		audit.Log(entry)
	}
	return nil
}

// FilterSmudge decrypts opts.In to opts.Out for the git smudge filter.
// Nothing is written when decryption fails.
func FilterSmudge(ctx context.Context, opts FilterOptions) error {
	p, err := openProject(opts.Backend, opts.Logger)
	if err != nil {
		return err
	}
	rel, err := p.normalizePath(opts.Path)
	if err != nil {
		return err
	}
	return p.filter().Smudge(ctx, rel, opts.In, opts.Out)
}
