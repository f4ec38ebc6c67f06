package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"voice-dashboard/pkg/auth"
	"voice-dashboard/pkg/config"
	"voice-dashboard/pkg/db"
	"voice-dashboard/pkg/domain"
	"voice-dashboard/pkg/gateway"
	"voice-dashboard/pkg/handle"
	"voice-dashboard/pkg/httpclient"
	"voice-dashboard/pkg/library"
	"voice-dashboard/pkg/playback"
	"voice-dashboard/pkg/podcastimportservice"
	"voice-dashboard/pkg/profileservice"
	"voice-dashboard/pkg/speaker"
	"voice-dashboard/pkg/voicerecordservice"
	"voice-dashboard/pkg/voiceuploadservice"
	"voice-dashboard/pkg/webhook"
)

var errNotLoggedIn = errors.New("not logged in; run 'voicectl login'")

// app holds the backends and gateways shared by the commands of one run.
type app struct {
	cfg     *config.Config
	timeout time.Duration
	pool    db.PoolConfig

	supabase *db.SupabaseClient
	identity *auth.SupabaseProvider
	records  db.RecordStore
	blobs    db.BlobStore
	profiles db.ProfileStore
	handles  *handle.Registry
	media    *httpclient.HTTPClient
	speaker  *speaker.Device

	// persistence is the record service bounded by the request timeout.
	persistence gateway.PersistenceGateway

	closers []func() error
}

// openApp connects the configured backends and restores the saved session.
// With requireLogin an anonymous run fails with errNotLoggedIn.
func openApp(ctx context.Context, requireLogin bool) (*app, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	timeout, _ := cfg.Timeout()
	pool, err := dbPool(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		timeout: timeout,
		pool:    pool,
		handles: handle.NewRegistry(),
		media:   httpclient.NewClientWithTimeout(httpclient.MediaClient, timeout),
	}

	a.supabase = db.NewSupabaseClient(db.SupabaseConfig{
		SupabaseURL: cfg.Supabase.URL,
		SupabaseKey: cfg.Supabase.Key,
		Password:    cfg.Supabase.DBPassword,
		Pool:        pool,
	})
	if err := a.supabase.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect supabase: %w", err)
	}
	a.closers = append(a.closers, a.supabase.Close)

	a.identity, err = auth.NewSupabaseProviderFromClient(a.supabase.SDK(), cfg.Supabase.Key)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.resumeSession(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if _, ok := a.identity.Current(); requireLogin && !ok {
		a.Close()
		return nil, errNotLoggedIn
	}

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	svc, err := voicerecordservice.New(voicerecordservice.Config{
		Records:  a.records,
		Identity: a.identity,
		Blobs:    a.blobs,
		Profiles: a.profiles,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.persistence = gateway.WithPersistenceTimeout(svc, timeout)
	return a, nil
}

// resumeSession restores the saved login. The refresh token is rotated on
// every use, so the new one is written back immediately.
func (a *app) resumeSession(ctx context.Context) error {
	saved, err := a.cfg.LoadSession()
	if err != nil || saved == nil {
		return err
	}
	if _, err := a.identity.Resume(ctx, saved.RefreshToken); err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			log.Printf("voicectl: saved session expired")
			return a.cfg.ClearSession()
		}
		return err
	}
	return a.saveSession(saved.Email)
}

func (a *app) saveSession(email string) error {
	return a.cfg.SaveSession(config.Session{Email: email, RefreshToken: a.identity.RefreshToken()})
}

func (a *app) openStores(ctx context.Context) error {
	switch a.cfg.RecordStore {
	case config.StorePostgres:
		pg := db.NewPostgresClient(db.PostgresConfig{DSN: a.cfg.Postgres.DSN, Pool: a.pool})
		if err := pg.Connect(ctx); err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		store := db.NewPostgresRecordStore(pg)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		a.records = store
	case config.StoreMongo:
		store, err := a.openMongo(ctx)
		if err != nil {
			return err
		}
		a.records = store
	default:
		a.records = db.NewSupabaseRecordStore(a.supabase.SDK())
	}

	switch a.cfg.BlobStore {
	case config.BlobsS3:
		s3, err := db.NewS3BlobStoreFromConfig(db.S3Config{
			Endpoint:        a.cfg.S3.Endpoint,
			Region:          a.cfg.S3.Region,
			AccessKeyID:     a.cfg.S3.AccessKeyID,
			SecretAccessKey: a.cfg.S3.SecretAccessKey,
			Bucket:          a.cfg.S3.Bucket,
			PublicBaseURL:   a.cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("open s3 blob store: %w", err)
		}
		a.blobs = s3
	default:
		a.blobs = a.supabase.BlobStore(a.cfg.RecordsBucket).WithToken(a.identity.AccessToken)
	}

	a.profiles = db.NewSupabaseProfileStore(a.supabase.SDK())
	return nil
}

func (a *app) openMongo(ctx context.Context) (*db.MongoRecordStore, error) {
	store := db.NewMongoRecordStore(a.cfg.Mongo.URI, a.cfg.Mongo.Database, a.cfg.Mongo.Collection)
	if err := store.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	a.closers = append(a.closers, func() error { return store.Close(context.Background()) })
	return store, nil
}

// uploader is the upload gateway: blob store, record row and webhook.
func (a *app) uploader() (gateway.UploadGateway, error) {
	cfg := voiceuploadservice.Config{
		Blobs:       a.blobs,
		Records:     a.records,
		MaxFileSize: a.cfg.MaxUploadBytes,
	}
	if a.cfg.Webhook.URL != "" {
		n, err := webhook.NewN8NNotifier(a.cfg.Webhook.URL, nil)
		if err != nil {
			return nil, err
		}
		cfg.Notifier = n
	}
	svc, err := voiceuploadservice.New(cfg)
	if err != nil {
		return nil, err
	}
	return gateway.WithUploadTimeout(svc, a.timeout), nil
}

// library builds the recording library. onChange, when set, observes the
// state of every player the library creates.
func (a *app) library(onChange func(playback.State)) (*library.Library, error) {
	elements := playback.NewStreamFactory(a.media, a.handles)
	elements.SetOutput(a.output())
	checker := playback.NewHTTPSourceChecker(a.media)
	return library.New(library.Config{
		Gateway:  a.persistence,
		Identity: a.identity,
		Players: func() (*playback.Player, error) {
			return playback.New(playback.Config{Elements: elements, Checker: checker, OnChange: onChange})
		},
		Downloader: library.NewHTTPDownloader(a.media, a.handles),
		Filter:     a.pageFilter(),
	})
}

// output is the default output device, opened on first play.
func (a *app) output() *speaker.Device {
	if a.speaker == nil {
		a.speaker = speaker.New(0)
		a.closers = append(a.closers, a.speaker.Terminate)
	}
	return a.speaker
}

// dbPool converts the pool section of cfg for the db clients.
func dbPool(cfg *config.Config) (db.PoolConfig, error) {
	life, idle, err := cfg.Pool.Lifetimes()
	if err != nil {
		return db.PoolConfig{}, err
	}
	return db.PoolConfig{
		MaxOpenConns:    cfg.Pool.MaxOpenConns,
		MaxIdleConns:    cfg.Pool.MaxIdleConns,
		ConnMaxLifetime: life,
		ConnMaxIdleTime: idle,
	}, nil
}

func (a *app) pageFilter() domain.ListFilter {
	return domain.ListFilter{Limit: a.cfg.PageSize}
}

func (a *app) profileService() (*profileservice.Service, error) {
	return profileservice.New(profileservice.Config{
		Profiles:      a.profiles,
		Avatars:       a.supabase.BlobStore(a.cfg.ProfilesBucket).WithToken(a.identity.AccessToken),
		MaxAvatarSize: profileservice.DefaultMaxAvatarSize,
	})
}

func (a *app) importService() (*podcastimportservice.Service, error) {
	cfg := podcastimportservice.Config{
		Records:  a.persistence,
		Identity: a.identity,
		Workers:  a.cfg.ImportWorkers,
	}
	if idx, ok := a.records.(podcastimportservice.SourceIndex); ok {
		cfg.Sources = idx
	}
	return podcastimportservice.New(cfg)
}

// Close releases the backends in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("voicectl: close: %v", err)
		}
	}
	a.closers = nil
}
