package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/avclabs/avc/internal/app"
	"github.com/avclabs/avc/internal/archive"
	"github.com/avclabs/avc/internal/ceremony"
	"github.com/avclabs/avc/internal/ledger"
	"github.com/avclabs/avc/internal/progress"
	"github.com/avclabs/avc/internal/provider"
	"github.com/avclabs/avc/internal/usage"
	"github.com/avclabs/avc/internal/verify"
)

// stores bundles the state-directory stores shared by read-only commands.
type stores struct {
	fs       afero.Fs
	paths    app.Paths
	ledger   *ledger.Store
	progress *progress.Store
	usage    *usage.Tracker
}

func openStores() stores {
	p := paths()
	fsys := afero.NewOsFs()

	lockPath := p.StateLock
	if globalConfig.DisableLock() {
		lockPath = ""
	}

	return stores{
		fs:       fsys,
		paths:    p,
		ledger:   ledger.NewStore(fsys, p.History, lockPath, globalLog),
		progress: progress.NewStore(fsys, p.Progress, lockPath, globalLog),
		usage:    usage.NewTracker(fsys, p.Usage, lockPath, globalLog),
	}
}

// buildClient constructs the call-layer client for the configured provider.
func buildClient() (*provider.Client, error) {
	p, err := provider.New(globalConfig.Provider(), globalConfig.Model())
	if err != nil {
		return nil, err
	}

	policy := provider.DefaultRetryPolicy()
	policy.MaxRetries = globalConfig.MaxRetries()

	return provider.NewClient(p, policy, globalLog), nil
}

// buildRunner assembles the full ceremony runner from configuration.
func buildRunner(ctx context.Context, st stores) (*ceremony.Runner, error) {
	client, err := buildClient()
	if err != nil {
		return nil, err
	}

	var gw archive.Gateway
	switch globalConfig.ArchiveBackend() {
	case "", "local":
		gw, err = archive.NewLocalGateway(st.fs, st.paths.Archive)
		if err != nil {
			return nil, err
		}
	case "s3":
		gw, err = archive.NewS3Gateway(ctx, archive.S3Config{
			Bucket: globalConfig.S3Bucket(),
			Prefix: globalConfig.S3Prefix(),
			Region: globalConfig.S3Region(),
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown archive backend %q", globalConfig.ArchiveBackend())
	}

	engine := verify.NewEngine(client, verify.LogSink{Log: globalLog}, globalLog)
	reporter := verify.NewReporter(st.fs, st.paths.Reports, globalConfig.ReportKeep(), globalLog)

	return ceremony.NewRunner(ceremony.Deps{
		Client:   client,
		Progress: st.progress,
		Ledger:   st.ledger,
		Usage:    st.usage,
		Engine:   engine,
		Reporter: reporter,
		Archive:  gw,
		Fs:       st.fs,
		Log:      globalLog,
	}), nil
}

// definitionPath resolves where a ceremony's definition file lives.
func definitionPath(p app.Paths, name string) string {
	return filepath.Join(p.Etc, "ceremonies", name+".yaml")
}
