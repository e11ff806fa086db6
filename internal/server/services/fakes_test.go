package services

import (
	"context"
	"database/sql"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/groupfiles/internal/common"
	"github.com/dmitrijs2005/groupfiles/internal/dbx"
	"github.com/dmitrijs2005/groupfiles/internal/filex"
	"github.com/dmitrijs2005/groupfiles/internal/logging"
	"github.com/dmitrijs2005/groupfiles/internal/server/config"
	"github.com/dmitrijs2005/groupfiles/internal/server/dispatch"
	"github.com/dmitrijs2005/groupfiles/internal/server/models"
	"github.com/dmitrijs2005/groupfiles/internal/server/profiles"
	"github.com/dmitrijs2005/groupfiles/internal/server/repositories/files"
	"github.com/dmitrijs2005/groupfiles/internal/server/repositories/groups"
	"github.com/dmitrijs2005/groupfiles/internal/server/storage"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- repositories ---

type fakeFilesRepo struct {
	mu        sync.Mutex
	created   []*models.FileRecord
	createErr error

	findOut *models.FileRecord
	findErr error

	deleted   []string
	deleteErr error

	listLimit int
	listOut   []*models.FileRecord
}

func (f *fakeFilesRepo) Create(ctx context.Context, r *models.FileRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r.CreatedAt = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	f.created = append(f.created, r)
	return nil
}

func (f *fakeFilesRepo) Find(ctx context.Context, id, groupID, userID string) (*models.FileRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.findOut == nil {
		return nil, common.ErrorNotFound
	}
	return f.findOut, nil
}

func (f *fakeFilesRepo) ListByGroup(ctx context.Context, groupID string, limit int) ([]*models.FileRecord, error) {
	f.listLimit = limit
	return f.listOut, nil
}

func (f *fakeFilesRepo) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeGroupsRepo struct {
	m     groups.Membership
	err   error
	calls int
}

func (f *fakeGroupsRepo) Membership(ctx context.Context, groupID, userID string) (groups.Membership, error) {
	f.calls++
	return f.m, f.err
}

func (f *fakeGroupsRepo) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	m, err := f.Membership(ctx, groupID, userID)
	return m.IsMember, err
}

func (f *fakeGroupsRepo) IsOwner(ctx context.Context, groupID, userID string) (bool, error) {
	m, err := f.Membership(ctx, groupID, userID)
	return m.IsOwner, err
}

type fakeRepoManager struct {
	f *fakeFilesRepo
	g *fakeGroupsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository           { return m.f }
func (m *fakeRepoManager) Groups(db dbx.DBTX) groups.Repository         { return m.g }

// --- pipeline ---

// spyWorkspaces records every workspace it hands out.
type spyWorkspaces struct {
	inner *filex.Provider
	mu    sync.Mutex
	paths []string
}

func (s *spyWorkspaces) With(fn func(ws *filex.Workspace) error) error {
	return s.inner.With(func(ws *filex.Workspace) error {
		s.mu.Lock()
		s.paths = append(s.paths, ws.Path())
		s.mu.Unlock()
		return fn(ws)
	})
}

func (s *spyWorkspaces) acquired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

type fakeProcessor struct {
	env   *dispatch.Envelope
	err   error
	calls int
}

func (p *fakeProcessor) Process(ctx context.Context, ws *filex.Workspace, data []byte, fileName string, profile profiles.Profile) (*dispatch.Envelope, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if p.env != nil {
		return p.env, nil
	}
	env := &dispatch.Envelope{Metadata: models.NewMetadata()}
	env.Metadata.Set("category", profile.Category.String())
	return env, nil
}

// memStore is an in-memory storage.ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string

	failKind  string
	deleteErr error
	// onDerive runs when a derivation is scheduled.
	onDerive func()
	derived  []string

	presignID  string
	presignTTL time.Duration
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Put(ctx context.Context, data []byte, opts storage.PutOptions) (*storage.PutResult, error) {
	if opts.ResourceKind == m.failKind {
		return nil, errors.New("InternalError: We encountered an internal error")
	}
	if opts.Progress != nil {
		half := int64(len(data) / 2)
		opts.Progress(half, int64(len(data)))
		opts.Progress(int64(len(data)), int64(len(data)))
	}
	key := path.Join(opts.Folder, opts.ObjectID)
	res := &storage.PutResult{URL: "mem://" + key, ObjectID: key, Bytes: int64(len(data)), Format: opts.Format}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return res, nil
}

func (m *memStore) Derive(ctx context.Context, req storage.DeriveRequest) ([]storage.DerivedObject, error) {
	key := storage.DerivedID(path.Join(req.Folder, req.ObjectID), storage.KindStream)
	m.mu.Lock()
	m.derived = append(m.derived, key)
	m.mu.Unlock()
	if m.onDerive != nil {
		m.onDerive()
	}
	return []storage.DerivedObject{{ObjectID: key, URL: "mem://" + key}}, nil
}

func (m *memStore) Delete(ctx context.Context, objectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, objectID)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, objectID)
	return nil
}

func (m *memStore) PresignGet(ctx context.Context, objectID string, ttl time.Duration) (string, error) {
	m.presignID = objectID
	m.presignTTL = ttl
	return "mem://signed/" + objectID, nil
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	return out
}

type recordingNotifier struct {
	mu      sync.Mutex
	events  []Event
	onEvent func(Event)
}

func (n *recordingNotifier) Notify(ctx context.Context, e Event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
	if n.onEvent != nil {
		n.onEvent(e)
	}
}

func (n *recordingNotifier) kinds() []EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []EventKind
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

func (n *recordingNotifier) last() Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

type fakeMetrics struct {
	mu           sync.Mutex
	outcomes     []string
	degradations []string
}

func (m *fakeMetrics) ObserveIngest(category, outcome string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, category+"/"+outcome)
}

func (m *fakeMetrics) Degradation(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degradations = append(m.degradations, stage)
}

// --- harness ---

type harness struct {
	svc        *IngestService
	files      *fakeFilesRepo
	groups     *fakeGroupsRepo
	store      *memStore
	workspaces *spyWorkspaces
	metrics    *fakeMetrics
}

func newHarness(t *testing.T, db *sql.DB, processor Processor) *harness {
	t.Helper()

	wsp, err := filex.NewProvider(t.TempDir(), "ingest")
	require.NoError(t, err)

	h := &harness{
		files:      &fakeFilesRepo{},
		groups:     &fakeGroupsRepo{m: groups.Membership{IsMember: true}},
		store:      newMemStore(),
		workspaces: &spyWorkspaces{inner: wsp},
		metrics:    &fakeMetrics{},
	}

	var cfg config.Config
	cfg.LoadDefaults()

	l := logging.NewNop()
	h.svc = NewIngestService(db, &fakeRepoManager{f: h.files, g: h.groups}, IngestDeps{
		Registry:   profiles.Default(),
		Workspaces: h.workspaces,
		Processor:  processor,
		Uploader:   storage.NewUploader(h.store, nil, l),
		Store:      h.store,
		Metrics:    h.metrics,
	}, &cfg, l)

	ids := []string{"run-1", "file-1", "run-2", "file-2"}
	h.svc.newID = func() string {
		id := ids[0]
		ids = append(ids[1:], id)
		return id
	}
	h.svc.now = func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) }
	return h
}
