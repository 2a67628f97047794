package guest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/id"
	"github.com/spf13/afero"
)

// document is the persisted shape. Field names are part of the on-disk
// contract and must stay stable.
type document struct {
	SessionID string          `json:"sessionId"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Items     []wishlist.Item `json:"items"`
}

func (d *document) session() Session {
	return Session{SessionID: d.SessionID, CreatedAt: d.CreatedAt, ExpiresAt: d.ExpiresAt}
}

func (d *document) indexOf(productID int64) int {
	for i := range d.Items {
		if d.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Options configures a FileStore.
type Options struct {
	Fs    afero.Fs
	Path  string
	TTL   time.Duration
	Clock func() time.Time
}

// FileStore keeps the guest document as a JSON file on an afero filesystem.
type FileStore struct {
	mu    sync.Mutex
	fs    afero.Fs
	path  string
	ttl   time.Duration
	now   func() time.Time
	newID func() (string, error)
}

var _ Store = (*FileStore)(nil)

func NewFileStore(opts Options) (*FileStore, error) {
	if opts.Fs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest store filesystem is required")
	}
	if opts.Path == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest store path is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultSessionTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &FileStore{
		fs:   opts.Fs,
		path: opts.Path,
		ttl:  opts.TTL,
		now:  opts.Clock,
		newID: func() (string, error) {
			return id.Generate(id.PrefixGuest)
		},
	}, nil
}

// InitSession returns the current session id, creating a new session when
// none exists or the previous one expired. A replaced session drops its items.
func (s *FileStore) InitSession() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err == nil && doc != nil && doc.SessionID != "" && !doc.session().Expired(s.now()) {
		return doc.SessionID, nil
	}

	sessionID, err := s.newID()
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate guest session id")
	}
	now := s.now().UTC()
	fresh := &document{
		SessionID: sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Items:     []wishlist.Item{},
	}
	if err := s.save(fresh); err != nil {
		return "", err
	}
	return sessionID, nil
}

func (s *FileStore) Session() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.active()
	if err != nil {
		return Session{}, false
	}
	return doc.session(), true
}

func (s *FileStore) Get(productID int64) (wishlist.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.active()
	if err != nil {
		return wishlist.Item{}, false, err
	}
	idx := doc.indexOf(productID)
	if idx < 0 {
		return wishlist.Item{}, false, nil
	}
	return doc.Items[idx].Clone(), true, nil
}

// Add inserts the product or folds the request into the existing entry.
func (s *FileStore) Add(req wishlist.AddRequest) (wishlist.Item, error) {
	if err := req.Validate(); err != nil {
		return wishlist.Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.active()
	if err != nil {
		return wishlist.Item{}, err
	}

	var item wishlist.Item
	if idx := doc.indexOf(req.ProductID); idx >= 0 {
		item = wishlist.ApplyAdd(doc.Items[idx], req)
		doc.Items[idx] = item
	} else {
		item = wishlist.NewItem(req, s.now())
		doc.Items = append(doc.Items, item)
	}
	if err := s.save(doc); err != nil {
		return wishlist.Item{}, err
	}
	return item.Clone(), nil
}

func (s *FileStore) Update(productID int64, patch wishlist.Patch) (wishlist.Item, error) {
	if err := patch.Validate(); err != nil {
		return wishlist.Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.active()
	if err != nil {
		return wishlist.Item{}, err
	}
	idx := doc.indexOf(productID)
	if idx < 0 {
		return wishlist.Item{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %d is not in the guest wishlist", productID))
	}
	doc.Items[idx] = patch.ApplyTo(doc.Items[idx])
	if err := s.save(doc); err != nil {
		return wishlist.Item{}, err
	}
	return doc.Items[idx].Clone(), nil
}

// Put replaces the whole item, inserting it when absent.
func (s *FileStore) Put(item wishlist.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.active()
	if err != nil {
		return err
	}
	if idx := doc.indexOf(item.ProductID); idx >= 0 {
		doc.Items[idx] = item.Clone()
	} else {
		doc.Items = append(doc.Items, item.Clone())
	}
	return s.save(doc)
}

// Remove deletes the product; removing an absent product is a no-op.
func (s *FileStore) Remove(productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.active()
	if err != nil {
		return err
	}
	idx := doc.indexOf(productID)
	if idx < 0 {
		return nil
	}
	doc.Items = append(doc.Items[:idx], doc.Items[idx+1:]...)
	return s.save(doc)
}

func (s *FileStore) List() ([]wishlist.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.SessionID == "" || doc.session().Expired(s.now()) {
		return []wishlist.Item{}, nil
	}
	items := make([]wishlist.Item, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, item.Clone())
	}
	wishlist.SortItems(items)
	return items, nil
}

// Clear drops every item but keeps the session.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil || doc == nil {
		return err
	}
	doc.Items = []wishlist.Item{}
	return s.save(doc)
}

// EndSession wipes the items and the session id.
func (s *FileStore) EndSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove guest store")
	}
	return nil
}

func (s *FileStore) active() (*document, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.SessionID == "" || doc.session().Expired(s.now()) {
		return nil, ErrNoSession
	}
	return doc, nil
}

func (s *FileStore) load() (*document, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read guest store")
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode guest store")
	}
	if doc.Items == nil {
		doc.Items = []wishlist.Item{}
	}
	return &doc, nil
}

func (s *FileStore) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode guest store")
	}
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := s.fs.MkdirAll(dir, 0o700); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create guest store directory")
		}
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write guest store")
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace guest store")
	}
	return nil
}
